// Package leaf renders LEA-style records into flat name=value||name=value
// lines and forwards them to a collector over TCP.
//
// Quick start:
//
//	line, err := leaf.Format([]leaf.Field{
//	    {Name: "src", Type: leaf.IPAddr, Value: "127.0.0.1"},
//	    {Name: "user", Type: leaf.String, Value: "admin"},
//	})
//	fmt.Print(line) // src=127.0.0.1||user=admin
//
// A Forwarder owns one collector connection; it is not safe for concurrent
// use. Records that would exceed the line ceiling (8192 bytes by default)
// are dropped whole, never truncated. Values are not escaped, so a value
// containing "||" or a newline produces an ambiguous line.
package leaf
