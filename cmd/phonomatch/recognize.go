package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonomatch/internal/intent"
	"github.com/MrWong99/phonomatch/internal/voicecmd"
)

// errNoMatch makes "recognize" exit non-zero when nothing matched.
var errNoMatch = errors.New("no intent matched")

func newRecognizeCmd(opts *rootOptions) *cobra.Command {
	var dispatch bool
	cmd := &cobra.Command{
		Use:   "recognize <text>",
		Short: "Recognise one utterance",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(cmd.Context()))

			text := strings.Join(args, " ")
			var (
				rec     *intent.Recognition
				results []voicecmd.Result
				runErr  error
			)
			if dispatch {
				rec, results, runErr = a.Filter().Check(cmd.Context(), text)
			} else {
				rec, runErr = a.Live().Load().Recognize(cmd.Context(), text)
			}
			if rec == nil && runErr != nil {
				return runErr
			}

			w := cmd.OutOrStdout()
			if opts.format == "json" {
				out := struct {
					Matched     bool                `json:"matched"`
					Recognition *intent.Recognition `json:"recognition,omitempty"`
					Actions     []voicecmd.Result   `json:"actions,omitempty"`
				}{rec != nil, rec, results}
				if err := printJSON(w, out); err != nil {
					return err
				}
			} else {
				printRecognition(w, rec, results)
			}

			if rec == nil {
				return errNoMatch
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&dispatch, "dispatch", false, "run the configured actions of the recognised intent")
	return cmd
}

func printRecognition(w io.Writer, rec *intent.Recognition, results []voicecmd.Result) {
	if rec == nil {
		fmt.Fprintln(w, "no match")
		return
	}
	fmt.Fprintf(w, "intent:      %s\n", rec.Intent)
	fmt.Fprintf(w, "tokens:      [%s]\n", strings.Join(rec.Strings, ", "))
	for name, value := range rec.Params {
		fmt.Fprintf(w, "param:       %s = %s\n", name, value)
	}
	fmt.Fprintf(w, "budget left: %.2f\n", rec.BudgetLeft)
	fmt.Fprintf(w, "id:          %s\n", rec.ID)
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "action:      %s failed: %s\n", r.Action, r.Error)
		} else {
			fmt.Fprintf(w, "action:      %s: %s\n", r.Action, r.Summary)
		}
	}
}

// evalCase is one line of an eval file: an utterance and, optionally, the
// intent it should be recognised as ("-" for none).
type evalCase struct {
	Text     string   `json:"text"`
	Expected string   `json:"expected,omitempty"`
	Intent   string   `json:"intent,omitempty"`
	Strings  []string `json:"strings,omitempty"`
	OK       bool     `json:"ok"`
}

func newEvalCmd(opts *rootOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "eval <file>",
		Short: "Recognise every line of a file and check the expected intents",
		Long: "Each non-empty line not starting with # is an utterance, optionally followed by a tab and\n" +
			"the expected intent name (\"-\" when nothing should match). Exits non-zero on any mismatch.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := readEvalFile(args[0])
			if err != nil {
				return err
			}
			a, _, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(cmd.Context()))

			texts := make([]string, len(cases))
			for i, c := range cases {
				texts[i] = c.Text
			}
			recs, err := a.Live().Load().RecognizeAll(cmd.Context(), texts, concurrency)
			if err != nil {
				return err
			}

			var matched, failed int
			for i, rec := range recs {
				c := &cases[i]
				got := "-"
				if rec != nil {
					matched++
					got = rec.Intent
					c.Intent, c.Strings = rec.Intent, rec.Strings
				}
				c.OK = c.Expected == "" || c.Expected == got
				if !c.OK {
					failed++
				}
			}

			w := cmd.OutOrStdout()
			if opts.format == "json" {
				if err := printJSON(w, cases); err != nil {
					return err
				}
			} else {
				for _, c := range cases {
					status := "ok"
					if !c.OK {
						status = "FAIL"
					}
					got := c.Intent
					if got == "" {
						got = "-"
					}
					fmt.Fprintf(w, "%-4s  %s -> %s [%s]\n", status, c.Text, got, strings.Join(c.Strings, ", "))
				}
				fmt.Fprintf(w, "\n%d/%d matched, %d mismatched\n", matched, len(cases), failed)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d utterances misrecognised", failed, len(cases))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of utterances recognised in parallel")
	return cmd
}

func readEvalFile(path string) ([]evalCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseEval(f)
}

func parseEval(r io.Reader) ([]evalCase, error) {
	var cases []evalCase
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		text, expected, _ := strings.Cut(line, "\t")
		cases = append(cases, evalCase{
			Text:     strings.TrimSpace(text),
			Expected: strings.TrimSpace(expected),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read eval file: %w", err)
	}
	return cases, nil
}

func newTransliterateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transliterate <text>",
		Short: "Show the phonemes each word is transliterated to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(cmd.Context()))

			conv := a.Converter()
			u, err := conv.Convert(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			type word struct {
				Word     string `json:"word"`
				Phonemes string `json:"phonemes"`
			}
			words := make([]word, len(u.Words))
			for i := range u.Words {
				words[i] = word{u.Words[i], conv.Alphabet().Decode(u.Phonemes[i])}
			}

			w := cmd.OutOrStdout()
			if opts.format == "json" {
				return printJSON(w, words)
			}
			for _, wd := range words {
				fmt.Fprintf(w, "%s\t%s\n", wd.Word, wd.Phonemes)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
