package data

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/gridplan/gridplan/pkg/common"
)

// Configured registers the data flags and returns the selected store once
// flags are parsed.
func Configured() Store {
	dir := lflag.String("data-dir", "", "Directory holding plants.csv, costs.csv, load.csv and sensitivity/")
	baseURL := lflag.String("data-url", "", "Base URL serving the same layout as data-dir")
	timeout := lflag.Duration("data-timeout", 30*time.Second, "Timeout for each dataset fetch from data-url")

	var s struct{ Store }

	lflag.Do(func() {
		switch {
		case *dir != "" && *baseURL != "":
			panic("only one of data-dir and data-url may be set")
		case *dir != "":
			s.Store = NewDirSource(*dir)
		case *baseURL != "":
			h, err := NewHTTPSource(*baseURL, common.HTTPClient(*timeout))
			if err != nil {
				panic(fmt.Sprintf("data-url: %v", err))
			}
			s.Store = h
		default:
			panic("one of data-dir or data-url is required")
		}
	})

	return &s
}
