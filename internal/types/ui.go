package types

// ResultMessage is pushed to websocket clients for every processed frame.
type ResultMessage struct {
	Type   string  `json:"type"`
	Result *Result `json:"result"`
}

// UISnapshot carries the latest Result per camera stream.
type UISnapshot struct {
	Type string             `json:"type"`
	Data map[string]*Result `json:"data"`
}
