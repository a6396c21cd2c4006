// Package perception describes the boundary to the inference services that
// produce detections, lane geometry and depth maps.
package perception

import (
	"context"

	"canaswarm-vision-go/internal/types"
)

// FrameSource delivers frames with inference results attached. The channel
// is closed when ctx is done or the source fails permanently.
type FrameSource interface {
	Frames(ctx context.Context) (<-chan types.Frame, error)
}
