// Command multimap-shell is an interactive REPL front-end over a Map.
// Every verb is per-key; there is no join/filter/predicate syntax.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	multimap "github.com/multimap-io/multimap-go"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".flush"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("ITERATE"),
)

const helpText = `
multimap-shell - interactive REPL over a multimap directory.

Commands:
  .help                    - show this help message
  .open PATH [--create]    - open a map at PATH
  .close                   - close the current map
  .exit                    - exit the program
  .stats                   - show total stats for the open map
  .flush                   - close then reopen the map, forcing a flush

  PUT key value            - append value to key's list
  GET key                  - print every value under key, one per line
  DELETE key                - tombstone every value under key
  ITERATE key               - same as GET, numbering each value
`

func main() {
	fmt.Println("multimap-shell")
	fmt.Println("Enter .help for usage hints.")

	var (
		m      *multimap.Map
		dbPath string
	)
	defer func() {
		if m != nil {
			m.Close()
		}
	}()

	historyFile := filepath.Join(os.TempDir(), ".multimap_shell_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "multimap> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		if dbPath != "" {
			rl.SetPrompt(fmt.Sprintf("multimap:%s> ", dbPath))
		} else {
			rl.SetPrompt("multimap> ")
		}

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			}
			if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		switch {
		case strings.HasPrefix(parts[0], "."):
			switch strings.ToLower(parts[0]) {
			case ".help":
				fmt.Print(helpText)

			case ".open":
				if len(parts) < 2 {
					fmt.Println("Error: missing path argument")
					continue
				}
				if m != nil {
					m.Close()
				}
				create := len(parts) > 2 && parts[2] == "--create"
				m, err = multimap.Open(parts[1], multimap.Options{CreateIfMissing: create})
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error opening map: %s\n", err)
					m = nil
					continue
				}
				dbPath = parts[1]
				fmt.Printf("Map opened at %s\n", dbPath)

			case ".close":
				if m == nil {
					fmt.Println("No map open")
					continue
				}
				if err := m.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Error closing map: %s\n", err)
				}
				m, dbPath = nil, ""

			case ".stats":
				if m == nil {
					fmt.Println("No map open")
					continue
				}
				s := m.TotalStats()
				fmt.Printf("num_keys=%d num_values_added=%d num_values_removed=%d\n",
					s.NumKeys, s.NumValuesAdded, s.NumValuesRemoved)

			case ".flush":
				if m == nil {
					fmt.Println("No map open")
					continue
				}
				path := dbPath
				if err := m.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Error flushing map: %s\n", err)
					m, dbPath = nil, ""
					continue
				}
				m, err = multimap.Open(path, multimap.Options{})
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error reopening map: %s\n", err)
					m, dbPath = nil, ""
				}

			case ".exit":
				return

			default:
				fmt.Printf("Unknown command: %s\n", parts[0])
			}
			continue
		}

		if m == nil {
			fmt.Println("No map open. Use .open PATH first.")
			continue
		}

		switch cmd {
		case "PUT":
			if len(parts) < 3 {
				fmt.Println("Usage: PUT key value")
				continue
			}
			if err := m.Put([]byte(parts[1]), []byte(strings.Join(parts[2:], " "))); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			}

		case "GET", "ITERATE":
			if len(parts) != 2 {
				fmt.Printf("Usage: %s key\n", cmd)
				continue
			}
			vals, err := m.Get([]byte(parts[1]))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				continue
			}
			if len(vals) == 0 {
				fmt.Println("(no values)")
			}
			for i, v := range vals {
				if cmd == "ITERATE" {
					fmt.Printf("%d: %s\n", i, v)
				} else {
					fmt.Println(string(v))
				}
			}

		case "DELETE":
			if len(parts) != 2 {
				fmt.Println("Usage: DELETE key")
				continue
			}
			if m.Remove([]byte(parts[1])) {
				fmt.Println("OK")
			} else {
				fmt.Println("(key not found or already empty)")
			}

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}
