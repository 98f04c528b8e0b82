package tools

// stringArg reads an optional string argument; missing or non-string
// values yield "".
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
