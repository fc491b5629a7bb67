package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"frampref-go/errcode"
	"frampref-go/prefs"
	"frampref-go/x/conv"
)

// Shell runs tool commands against one pool held in memory. Changes reach
// the image file only on save.
type Shell struct {
	store *prefs.Store
	mem   *prefs.Memory
	image string
	out   io.Writer
	dirty bool
}

func NewShell(store *prefs.Store, mem *prefs.Memory, image string, out io.Writer) *Shell {
	return &Shell{store: store, mem: mem, image: image, out: out}
}

type command struct {
	usage string
	help  string
	nargs int
	run   func(s *Shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"get":     {"get <key> [len]", "print a record as hex", 1, (*Shell).get},
		"put":     {"put <key> <hex>", "store hex bytes (str:<text> for text)", 2, (*Shell).put},
		"del":     {"del <key>", "mark a record stale", 1, (*Shell).del},
		"commit":  {"commit", "flush staged writes", 0, (*Shell).commit},
		"compact": {"compact", "reclaim stale records", 0, (*Shell).compact},
		"stats":   {"stats", "pool usage", 0, (*Shell).stats},
		"keys":    {"keys", "list keys and lengths", 0, (*Shell).keys},
		"reset":   {"reset", "drop every record", 0, (*Shell).reset},
		"hash":    {"hash <name>", "key for a preference name", 1, (*Shell).hash},
		"save":    {"save", "write the image file", 0, (*Shell).save},
		"help":    {"help", "this list", 0, (*Shell).help},
	}
}

// commandNames is the completion list.
func commandNames() []string {
	names := make([]string, 0, len(commands)+1)
	for n := range commands {
		names = append(names, n)
	}
	return append(names, "quit")
}

// Exec splits line shell-style and runs it. quit reports an exit request.
func (s *Shell) Exec(line string) (quit bool, err error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, errcode.Wrap(errcode.InvalidParams, "parse", err)
	}
	return s.Run(args)
}

// Run executes one already split command.
func (s *Shell) Run(args []string) (quit bool, err error) {
	if len(args) == 0 {
		return false, nil
	}
	name := strings.ToLower(args[0])
	if name == "quit" || name == "exit" {
		if s.dirty {
			fmt.Fprintln(s.out, "image not saved")
		}
		return true, nil
	}
	c, ok := commands[name]
	if !ok {
		return false, &errcode.E{C: errcode.Unsupported, Op: name, Msg: "unknown command (try help)"}
	}
	if len(args)-1 < c.nargs {
		return false, &errcode.E{C: errcode.InvalidParams, Op: name, Msg: "usage: " + c.usage}
	}
	return false, c.run(s, args[1:])
}

// Dirty reports changes not yet saved.
func (s *Shell) Dirty() bool { return s.dirty }

func (s *Shell) get(args []string) error {
	key, err := prefs.ParseKey(args[0])
	if err != nil {
		return err
	}
	n, ok := s.store.Len(key)
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return &errcode.E{C: errcode.InvalidParams, Op: "get", Msg: "bad length " + args[1]}
		}
		n = v
	} else if !ok {
		return errcode.NotFound
	}
	buf := make([]byte, n)
	if err := s.store.Get(key, buf); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s\n", conv.Key(key), hex.EncodeToString(buf))
	return nil
}

func (s *Shell) put(args []string) error {
	key, err := prefs.ParseKey(args[0])
	if err != nil {
		return err
	}
	data, err := parseData(args[1])
	if err != nil {
		return err
	}
	if err := s.store.Put(key, data); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// parseData reads hex bytes, or the literal text after "str:".
func parseData(arg string) ([]byte, error) {
	if t, ok := strings.CutPrefix(arg, "str:"); ok {
		return []byte(t), nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "data", err)
	}
	return b, nil
}

func (s *Shell) del(args []string) error {
	key, err := prefs.ParseKey(args[0])
	if err != nil {
		return err
	}
	if err := s.store.Delete(key); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

func (s *Shell) commit([]string) error {
	s.dirty = true
	return s.store.Commit()
}

func (s *Shell) compact([]string) error {
	s.dirty = true
	return s.store.Compact()
}

func (s *Shell) reset([]string) error {
	s.dirty = true
	return s.store.Reset()
}

func (s *Shell) stats([]string) error {
	st := s.store.Stats()
	fmt.Fprintf(s.out, "state=%s capacity=%d used=%d live=%d stale=%d free=%d records=%d staged=%d occupancy=%d%%\n",
		s.store.State(), st.Capacity, st.Used, st.Live, st.Stale, st.Free, st.Records, st.Staged, st.Occupancy())
	if s.store.Cleared() {
		fmt.Fprintln(s.out, "pool was formatted on open")
	}
	return nil
}

func (s *Shell) keys([]string) error {
	for _, k := range s.store.Keys() {
		n, _ := s.store.Len(k)
		fmt.Fprintf(s.out, "%s %d\n", conv.Key(k), n)
	}
	return nil
}

func (s *Shell) hash(args []string) error {
	fmt.Fprintln(s.out, conv.Key(prefs.KeyOf(args[0])))
	return nil
}

func (s *Shell) save([]string) error {
	if s.store.Stats().Staged > 0 {
		if err := s.store.Commit(); err != nil {
			return err
		}
	}
	if err := saveImage(s.image, s.mem); err != nil {
		return err
	}
	s.dirty = false
	fmt.Fprintf(s.out, "saved %s\n", s.image)
	return nil
}

func (s *Shell) help([]string) error {
	fmt.Fprintln(s.out, "Commands:")
	for _, n := range []string{"get", "put", "del", "commit", "compact", "stats", "keys", "reset", "hash", "save", "help"} {
		c := commands[n]
		fmt.Fprintf(s.out, "  %-18s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(s.out, "  %-18s %s\n", "quit", "leave the shell")
	fmt.Fprintln(s.out, "Keys are 0x-prefixed hex or names hashed like preferences.")
	return nil
}
