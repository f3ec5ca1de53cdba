//go:build !sonic

package manifest

import "github.com/goccy/go-json"

var jsonUnmarshal = json.Unmarshal
