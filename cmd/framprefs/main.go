// framprefs inspects and edits a preferences pool inside a FRAM image
// file.
//
//	framprefs -c pool.yaml stats
//	framprefs -c pool.yaml put wifi_ssid str:home
//	framprefs -c pool.yaml          # interactive
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"frampref-go/prefs"
	"frampref-go/x/logx"
)

const prompt = "fram> "

var log = logx.New("framprefs")

func main() {
	cfgPath := flag.String("c", "", "YAML config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logx.Threshold = logx.LevelInfo
	if *verbose {
		logx.Threshold = logx.LevelDebug
	}
	logx.SetOutput(os.Stderr)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	mem, err := loadImage(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image: %v\n", err)
		os.Exit(1)
	}
	store, err := prefs.Open(mem, cfg.store())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open pool: %v\n", err)
		os.Exit(1)
	}
	log.Debugf("image %s, %d bytes, pool %d@%d", cfg.Image, mem.Size(), cfg.Pool.Size, cfg.Pool.Start)
	if store.Cleared() {
		log.Warnf("pool signature mismatch, pool formatted")
	}

	sh := NewShell(store, mem, cfg.Image, os.Stdout)

	if args := flag.Args(); len(args) > 0 {
		os.Exit(oneShot(sh, args))
	}
	interactive(sh)
}

// oneShot runs a single command and saves the image if it changed.
func oneShot(sh *Shell, args []string) int {
	if _, err := sh.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if sh.Dirty() {
		if _, err := sh.Run([]string{"save"}); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return 1
		}
	}
	return 0
}

func interactive(sh *Shell) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		var out []string
		for _, n := range commandNames() {
			if strings.HasPrefix(n, strings.ToLower(in)) {
				out = append(out, n)
			}
		}
		return out
	})

	hist := historyPath()
	if f, err := os.Open(hist); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(hist); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("framprefs, type 'help' for commands")
	for {
		in, err := line.Prompt(prompt)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, liner.ErrPromptAborted) {
				log.Errorf("read: %v", err)
			}
			fmt.Println()
			return
		}
		if strings.TrimSpace(in) == "" {
			continue
		}
		line.AppendHistory(in)

		quit, err := sh.Exec(in)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			continue
		}
		if quit {
			return
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".framprefs_history"
	}
	return filepath.Join(home, ".framprefs_history")
}
