// Command wormhole sends and receives single files using human-readable
// wormhole codes.
//
// Usage:
//
//	wormhole send [-config config.toml] [-length N] FILE
//	wormhole receive [-config config.toml] [-dir DIR] [-yes] CODE
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/wormhole"
)

func main() {
	logrus.SetLevel(logrus.WarnLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "receive":
		err = runReceive(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "wormhole: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wormhole send [-config FILE] [-length N] FILE")
	fmt.Fprintln(os.Stderr, "       wormhole receive [-config FILE] [-dir DIR] [-yes] CODE")
}

// cancelOnInterrupt makes Ctrl-C abort the session instead of killing the
// process mid-handshake.
func cancelOnInterrupt(client *wormhole.Client) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sig; ok {
			fmt.Fprintln(os.Stderr, "\ninterrupted, cancelling")
			client.Cancel()
		}
	}()
	return func() {
		signal.Stop(sig)
		close(sig)
	}
}

func printProgress(verb string) wormhole.ProgressFunc {
	return func(ev wormhole.ProgressEvent) {
		fmt.Printf("\r%s %d/%d bytes (%d%%)", verb, ev.Transferred, ev.Total, ev.Percent)
		if ev.Percent == 100 {
			fmt.Println()
		}
	}
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	length := fs.Int("length", 0, "number of words in the code (0 for default)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	path := fs.Arg(0)

	opts, cfgLength, err := loadOptions(*configPath)
	if err != nil {
		return err
	}
	if *length == 0 {
		*length = cfgLength
	}

	client := wormhole.NewClient(opts)
	stop := cancelOnInterrupt(client)
	defer stop()

	code, err := client.CreateSendCode(*length)
	if err != nil {
		return err
	}
	fmt.Printf("Wormhole code: %s\n", code)
	fmt.Println("On the other machine, run: wormhole receive", code)

	if err := client.SendFile(path, printProgress("sent")); err != nil {
		return err
	}
	fmt.Println("file sent")
	return nil
}

func runReceive(args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	dir := fs.String("dir", ".", "directory to save the received file in")
	yes := fs.Bool("yes", false, "accept the offer without prompting")
	fs.Parse(args)

	if fs.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	code := fs.Arg(0)

	opts, _, err := loadOptions(*configPath)
	if err != nil {
		return err
	}

	client := wormhole.NewClient(opts)
	stop := cancelOnInterrupt(client)
	defer stop()

	offer, err := client.ConnectReceive(code)
	if err != nil {
		return err
	}
	fmt.Printf("Incoming file: %s (%d bytes)\n", offer.Filename, offer.Filesize)

	if !*yes && !confirm("Accept? [y/N] ") {
		if err := client.RejectTransfer(); err != nil {
			return err
		}
		fmt.Println("transfer rejected")
		return nil
	}

	path, err := client.AcceptTransfer(*dir, printProgress("received"))
	if err != nil {
		return err
	}
	fmt.Println("saved to", path)
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
