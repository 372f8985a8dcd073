package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/SritejBommaraju/mini-redis/internal/resp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	// One-shot mode: mini-redis-cli SET key value
	if flag.NArg() > 0 {
		if err := runCommand(writer, reader, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      *addr + "> ",
		HistoryFile: filepath.Join(os.TempDir(), "mini-redis-cli.history"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "exit") {
			return
		}
		if err := runCommand(writer, reader, args); err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(os.Stderr, "connection closed by server")
				return
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		if strings.EqualFold(args[0], "quit") {
			return
		}
	}
}

func runCommand(w *bufio.Writer, r *bufio.Reader, args []string) error {
	cmdArgs := make([][]byte, len(args)-1)
	for i, arg := range args[1:] {
		cmdArgs[i] = []byte(arg)
	}
	if _, err := w.Write(resp.CommandArray(args[0], cmdArgs...)); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	reply, err := resp.ReadReply(r)
	if err != nil {
		return err
	}
	printReply(reply, "")
	return nil
}

func printReply(reply resp.Reply, indent string) {
	switch reply.Kind {
	case '+':
		fmt.Println(indent + reply.Str)
	case '-':
		fmt.Println(indent + "(error) " + reply.Str)
	case ':':
		fmt.Println(indent + "(integer) " + strconv.FormatInt(reply.Int, 10))
	case '$':
		if reply.IsNil {
			fmt.Println(indent + "(nil)")
		} else {
			fmt.Printf("%s%q\n", indent, reply.Bulk)
		}
	case '*':
		if len(reply.Elems) == 0 {
			fmt.Println(indent + "(empty array)")
			return
		}
		for i, elem := range reply.Elems {
			fmt.Printf("%s%d) ", indent, i+1)
			printReply(elem, "")
		}
	}
}
