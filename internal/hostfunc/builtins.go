package hostfunc

import (
	"fmt"
	"strconv"
)

// builtins returns the default name->Func map: sample_notes, old_notes,
// recent_notes, orphans, hubs, neighbors. All take a single optional count
// argument defaulting to 5; neighbors additionally takes a required path
// as its first argument.
func builtins() map[string]Func {
	return map[string]Func{
		"sample_notes": func(v Vault, args ...string) (interface{}, error) { return v.SampleNotes(countArg(args, 0)), nil },
		"old_notes":    func(v Vault, args ...string) (interface{}, error) { return v.OldNotes(countArg(args, 0)), nil },
		"recent_notes": func(v Vault, args ...string) (interface{}, error) { return v.RecentNotes(countArg(args, 0)), nil },
		"orphans":      func(v Vault, args ...string) (interface{}, error) { return v.Orphans(countArg(args, 0)), nil },
		"hubs":         func(v Vault, args ...string) (interface{}, error) { return v.Hubs(countArg(args, 0)), nil },
		"neighbors":    neighbors,
	}
}

func countArg(args []string, idx int) int {
	if idx >= len(args) {
		return 5
	}
	n, err := strconv.Atoi(args[idx])
	if err != nil {
		return 5
	}
	return n
}

func neighbors(v Vault, args ...string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("neighbors: requires a note path argument")
	}
	return v.Neighbors(args[0], countArg(args, 1)), nil
}
