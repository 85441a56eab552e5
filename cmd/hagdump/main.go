package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/haglib/hagsock/internal/frame"
	"github.com/haglib/hagsock/internal/journal"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: hagdump <journal-file> [--raw] [--max-payload <bytes>]")
		fmt.Fprintln(os.Stderr, "  --raw                  journal was written without zstd compression")
		fmt.Fprintln(os.Stderr, "  --max-payload <bytes>  ceiling for frame payloads (default 64 MiB);")
		fmt.Fprintln(os.Stderr, "                         must match or exceed the writing server's limit")
		os.Exit(1)
	}
	path := os.Args[1]
	compress := true
	var maxPayload uint64
	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--raw":
			compress = false
		case "--max-payload":
			if i+1 < len(os.Args) {
				var err error
				maxPayload, err = strconv.ParseUint(os.Args[i+1], 10, 32)
				if err != nil {
					fmt.Fprintf(os.Stderr, "invalid --max-payload: %v\n", err)
					os.Exit(1)
				}
				i++
			}
		}
	}

	r, err := journal.NewReader(path, compress, uint32(maxPayload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	num := 0
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "frame %d: %v\n", num+1, err)
			os.Exit(1)
		}
		num++
		printFrame(num, f)
	}
	fmt.Printf("Total frames: %d\n", num)
}

func printFrame(num int, f *frame.Frame) {
	fmt.Printf("=== frame %d (%s, %d payload bytes) ===\n", num, f.Type, len(f.Payload))
	fmt.Printf("  dest: user=%d group=%d  src: user=%d group=%d\n",
		f.DestUserID, f.DestGroupID, f.SrcUserID, f.SrcGroupID)

	switch f.Type {
	case frame.PlainText:
		fmt.Printf("  text: %q\n", f.Text())
	case frame.TextAndPngImage:
		msg, img := f.TextAndImage()
		fmt.Printf("  text: %q\n", msg)
		if img != nil {
			fmt.Printf("  image: %v\n", img.Bounds())
		}
	case frame.PngImage:
		if img := f.Image(); img != nil {
			fmt.Printf("  image: %v\n", img.Bounds())
		}
	case frame.Complex:
		c := f.ComplexData()
		fmt.Printf("  complex: %d texts, %d images, %d binaries\n",
			len(c.Texts), len(c.Images), len(c.Binaries))
	case frame.Requirement:
		c := f.RequirementData()
		fmt.Printf("  requirement: %d texts, %d images, %d binaries\n",
			len(c.Texts), len(c.Images), len(c.Binaries))
	case frame.PacketFrame:
		if child := f.Child(); child != nil {
			fmt.Printf("  nested frame: %s, %d payload bytes\n", child.Type, len(child.Payload))
		}
	}
}
