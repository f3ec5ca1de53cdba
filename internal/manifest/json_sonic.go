//go:build sonic

package manifest

import "github.com/bytedance/sonic"

var jsonUnmarshal = sonic.Unmarshal
