package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/glowe/dartviz/internal/api"
	"github.com/glowe/dartviz/pkg/core"
)

const usage = `usage: dartviz [-config dir] [serve]
       dartviz [-addr url] status|clear|undo
       dartviz [-addr url] snapshot <file.png>
       dartviz [-addr url] layout <left> <top> <width> <height>`

// runCtl sends one control command to a running overlay and returns the exit
// code.
func runCtl(addr string, args []string) int {
	if err := ctl(api.New(addr), args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func ctl(c *api.Client, args []string) error {
	switch strings.ToLower(args[0]) {
	case "status":
		st, err := c.Status()
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "clear":
		return c.Clear()

	case "undo":
		return c.Undo()

	case "snapshot":
		if len(args) < 2 {
			return fmt.Errorf("snapshot: missing output file\n%s", usage)
		}
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[1], err)
		}
		if err := c.Snapshot(f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()

	case "layout":
		if len(args) < 5 {
			return fmt.Errorf("layout: need left, top, width and height\n%s", usage)
		}
		var v [4]float64
		for i := range v {
			n, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return fmt.Errorf("layout: bad number %q: %w", args[i+1], err)
			}
			v[i] = n
		}
		return c.Layout(core.Layout{Left: v[0], Top: v[1], Width: v[2], Height: v[3]})

	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}
