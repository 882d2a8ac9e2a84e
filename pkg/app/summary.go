package app

import (
	"fmt"

	"github.com/xlttj/liveserve/pkg/supervisor"
)

// Title is the application name shown by summary observers.
const Title = "Live Server Here"

var noServers = map[string]string{
	"en": "No servers running",
	"zh": "暂无运行中的服务",
}

// Summary is a one-line description of the running servers for tray style
// observers, e.g. "Live Server Here (2 servers running)". Records that are
// not active are not counted.
func Summary(records []supervisor.ServerRecord) string {
	n := 0
	for _, r := range records {
		if r.Active() {
			n++
		}
	}
	switch n {
	case 0:
		return Title
	case 1:
		return fmt.Sprintf("%s (1 server running)", Title)
	default:
		return fmt.Sprintf("%s (%d servers running)", Title, n)
	}
}

// EmptyMessage is the translated "no servers" line for language, falling back to English.
func EmptyMessage(language string) string {
	if msg, ok := noServers[language]; ok {
		return msg
	}
	return noServers["en"]
}
