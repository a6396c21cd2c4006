package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"canaswarm-vision-go/internal/output"
)

func main() {
	var (
		path  = flag.String("path", "", "Path to rawlog .bin file")
		limit = flag.Int("limit", 1, "Number of records to dump (0 for all)")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}

	for count := 0; *limit <= 0 || count < *limit; count++ {
		rec, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("read record: %v", err)
		}
		if len(rec.Payload) == 0 {
			log.Printf("record %d: empty payload", count)
			continue
		}

		var decoded any
		if err := cbor.Unmarshal(rec.Payload, &decoded); err != nil {
			log.Printf("record %d: CBOR decode error: %v", count, err)
			continue
		}

		pretty, err := json.MarshalIndent(output.NormalizeJSONValue(decoded), "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			continue
		}

		log.Printf("record %d timestamp=%s size=%d", count, rec.Received.Format(time.RFC3339Nano), len(rec.Payload))
		fmt.Println(string(pretty))
	}
}
