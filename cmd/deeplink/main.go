package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MagnunAVF/mail-deeplink/internal"
	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
)

func main() {
	applog.Init(applog.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  "text",
		Service: "deeplink",
		Output:  "stderr",
	})
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "deeplink",
		Usage:     "Build webmail deep links from mail API identifiers",
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Encode a legacy hex id as a web UI token",
				ArgsUsage: "<hex-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "class", Aliases: []string{"c"}, Usage: "thread or message", Value: "thread"},
					&cli.BoolFlag{Name: "explain", Aliases: []string{"x"}, Usage: "Print every intermediate value as JSON"},
				},
				Action: runEncode,
			},
			{
				Name:      "decode",
				Usage:     "Decode a web UI token back to its payload and hex id",
				ArgsUsage: "<token>",
				Action:    runDecode,
			},
			{
				Name:      "transcode",
				Usage:     "Convert a token between the full and reduced alphabets",
				ArgsUsage: "<token>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "Source alphabet (full|reduced)", Value: "full"},
					&cli.StringFlag{Name: "to", Usage: "Target alphabet (full|reduced)", Value: "reduced"},
				},
				Action: runTranscode,
			},
			{
				Name:   "search",
				Usage:  "Build a search link from mail metadata",
				Flags:  append([]cli.Flag{hostFlag(), accountFlag()}, metadataFlags()...),
				Action: runSearch,
			},
			{
				Name:  "resolve",
				Usage: "Resolve the best link for a mail record",
				Flags: append([]cli.Flag{
					hostFlag(),
					accountFlag(),
					&cli.StringFlag{Name: "id", Usage: "Message id (primary identifier)"},
					&cli.StringFlag{Name: "thread-id", Usage: "Thread id (secondary identifier)"},
					&cli.StringFlag{Name: "token", Usage: "Previously captured web UI token"},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				}, metadataFlags()...),
				Action: runResolve,
			},
		},
	}
}

func hostFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "host",
		Usage:   "Webmail host",
		EnvVars: []string{"WEBMAIL_HOST"},
		Value:   internal.DefaultWebmailHost,
	}
}

func accountFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "account",
		Aliases: []string{"u"},
		Usage:   "Signed-in account index (/mail/u/<n>/); negative omits it",
		Value:   -1,
	}
}

func metadataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "subject", Usage: "Mail subject"},
		&cli.StringFlag{Name: "from", Usage: "Sender address"},
		&cli.StringFlag{Name: "received-at", Usage: "Received time (RFC 3339, mail Date header or epoch ms)"},
	}
}

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument", name)
	}
	return c.Args().First(), nil
}

func accountIndex(c *cli.Context) *int {
	if n := c.Int("account"); n >= 0 {
		return &n
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runEncode(c *cli.Context) error {
	hex, err := requireArg(c, "hex id")
	if err != nil {
		return err
	}
	class, err := internal.ParseTokenClass(c.String("class"))
	if err != nil {
		return err
	}
	enc, err := internal.Encode(hex, class)
	if err != nil {
		return err
	}
	if c.Bool("explain") {
		return writeJSON(c.App.Writer, enc)
	}
	_, err = fmt.Fprintln(c.App.Writer, enc.Token)
	return err
}

func runDecode(c *cli.Context) error {
	token, err := requireArg(c, "token")
	if err != nil {
		return err
	}
	enc, err := internal.DecodeToken(token)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, enc)
}

func parseAlphabet(name string) (internal.Alphabet, error) {
	switch name {
	case "full":
		return internal.FullAlphabet, nil
	case "reduced":
		return internal.ReducedAlphabet, nil
	default:
		return internal.Alphabet{}, fmt.Errorf("unknown alphabet %q (want full or reduced)", name)
	}
}

func runTranscode(c *cli.Context) error {
	token, err := requireArg(c, "token")
	if err != nil {
		return err
	}
	from, err := parseAlphabet(c.String("from"))
	if err != nil {
		return err
	}
	to, err := parseAlphabet(c.String("to"))
	if err != nil {
		return err
	}
	out, err := internal.Transcode(token, from, to)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, out)
	return err
}

func runSearch(c *cli.Context) error {
	links := internal.LinkBuilder{Host: c.String("host")}
	url, ok := links.BuildSearchURL(c.String("subject"), c.String("from"), c.String("received-at"), accountIndex(c))
	if !ok {
		return cli.Exit("no search terms available", 1)
	}
	_, err := fmt.Fprintln(c.App.Writer, url)
	return err
}

func runResolve(c *cli.Context) error {
	r := internal.NewResolver(internal.LinkBuilder{Host: c.String("host")}, nil)
	res, err := r.Resolve(internal.Record{
		MessageID:    c.String("id"),
		ThreadID:     c.String("thread-id"),
		Token:        c.String("token"),
		Subject:      c.String("subject"),
		From:         c.String("from"),
		ReceivedAt:   c.String("received-at"),
		AccountIndex: accountIndex(c),
	})
	if errors.Is(err, internal.ErrNoLinkAvailable) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, res)
	}
	_, err = fmt.Fprintf(c.App.Writer, "%s\t%s\n", res.URL, res.Tier)
	return err
}
