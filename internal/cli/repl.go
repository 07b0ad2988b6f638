// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/genstudio/internal/bridge"
	"github.com/jeranaias/genstudio/internal/config"
	"github.com/jeranaias/genstudio/internal/model"
	"github.com/jeranaias/genstudio/internal/prefs"
	"github.com/jeranaias/genstudio/internal/session"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the REPL.
type Options struct {
	Out         io.Writer
	HistoryFile string
	Config      *config.Config
	Logger      *log.Logger

	// Markdown enables glamour rendering of assistant turns.
	Markdown bool
	Width    int
}

// =============================================================================
// REPL
// =============================================================================

// REPL is an interactive shell driving one session controller.
//
// Plain lines are sent as messages and block until the turn resolves;
// Ctrl+C cancels. A line ending in " &" is sent in the background, and a
// later message supersedes it.
type REPL struct {
	out    *syncWriter
	cfg    *config.Config
	logger *log.Logger
	md     markdown
	width  int

	historyFile string

	ctrl        *session.Controller
	unsubscribe func()
	sc          model.SendContext

	// waiting is set while a foreground request blocks the prompt.
	waiting atomic.Bool

	progressMu   sync.Mutex
	lastProgress string

	bg sync.WaitGroup
}

// New creates a REPL. Attach a controller with Run.
func New(opts Options) *REPL {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Width <= 0 {
		opts.Width = DefaultTerminalWidth
	}
	return &REPL{
		out:         &syncWriter{w: opts.Out},
		cfg:         opts.Config,
		logger:      opts.Logger,
		md:          newMarkdown(opts.Markdown, opts.Width-4),
		width:       opts.Width,
		historyFile: opts.HistoryFile,
	}
}

// MediaHook returns a hook reporting library registrations.
func (r *REPL) MediaHook() session.MediaHook {
	return func(messageID string, entries []bridge.RegisteredImage) {
		r.out.printf("%s saved %d image(s) to the library\n", SuccessStyle.Render("+"), len(entries))
	}
}

// attach binds the controller and subscribes to progress updates.
func (r *REPL) attach(ctrl *session.Controller) {
	r.ctrl = ctrl
	r.unsubscribe = ctrl.Subscribe(r.onState)
}

func (r *REPL) detach() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.bg.Wait()
}

// onState prints status line changes while a foreground request runs.
func (r *REPL) onState(st session.State) {
	if !r.waiting.Load() || !st.IsLoading {
		return
	}
	line := formatProgress(st)
	r.progressMu.Lock()
	changed := line != r.lastProgress
	r.lastProgress = line
	r.progressMu.Unlock()
	if changed {
		r.out.println(line)
	}
}

// Run reads lines until /quit, EOF or ctx is cancelled.
func (r *REPL) Run(ctx context.Context, ctrl *session.Controller) error {
	r.attach(ctrl)
	defer r.detach()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)
	r.loadHistory(line)
	defer r.saveHistory(line)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if r.waiting.Load() {
				ctrl.Cancel()
			}
		}
	}()

	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.out.println("")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := r.Execute(ctx, input)
		if err != nil {
			DisplayError(r.out, err)
		}
		if quit {
			return nil
		}
	}
}

func (r *REPL) prompt() string {
	brand := r.ctrl.BrandID()
	if brand == "" {
		brand = "no brand"
	}
	return brand + "> "
}

func (r *REPL) printWelcome() {
	r.out.println(TitleStyle.Render("genstudio") + DimStyle.Render("  type /help for commands"))
	if r.ctrl.BrandID() == "" {
		r.out.println(WarningStyle.Render("Select a brand with /brand <id> before sending."))
	}
}

func (r *REPL) loadHistory(line *liner.State) {
	if r.historyFile == "" {
		return
	}
	if f, err := os.Open(r.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

func (r *REPL) saveHistory(line *liner.State) {
	if r.historyFile == "" {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		r.logger.Printf("HISTORY_SAVE_FAILED | path=%s error=%v", r.historyFile, err)
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range commandTable {
		if strings.HasPrefix("/"+c.name, line) {
			out = append(out, "/"+c.name)
		}
	}
	return out
}

// =============================================================================
// DISPATCH
// =============================================================================

// Execute handles one input line. It reports whether the REPL should exit.
func (r *REPL) Execute(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		if content, ok := strings.CutSuffix(input, " &"); ok {
			return false, r.sendBackground(ctx, content)
		}
		return false, r.send(ctx, input)
	}

	cmd, err := parseCommand(input)
	if err != nil {
		return false, err
	}

	switch cmd.Name {
	case "help":
		r.printHelp()
	case "brand":
		return false, r.cmdBrand(ctx, cmd.Args)
	case "attach":
		r.cmdAttach(cmd.Args)
	case "asset":
		return false, r.cmdAsset(ctx, cmd.Args)
	case "detach":
		return false, r.cmdDetach(cmd.Args)
	case "ratio":
		return false, r.cmdRatio(cmd.Args)
	case "mode":
		return false, r.cmdMode(cmd.Args)
	case "product":
		r.sc.Products = append([]string(nil), cmd.Args...)
		r.out.println(DimStyle.Render("products: " + joinOrNone(r.sc.Products)))
	case "template":
		r.sc.TemplateID = strings.Join(cmd.Args, " ")
		r.out.println(DimStyle.Render("template: " + joinOrNone([]string{r.sc.TemplateID})))
	case "cancel":
		if !r.ctrl.IsLoading() {
			r.out.println(DimStyle.Render("nothing to cancel"))
			return false, nil
		}
		r.ctrl.Cancel()
	case "regen":
		return false, r.cmdRegen(ctx, cmd.Args)
	case "choose":
		return false, r.cmdChoose(ctx, cmd.Args)
	case "history":
		r.out.println(formatHistory(r.ctrl.State().Messages, r.width))
	case "dismiss":
		r.ctrl.DismissError()
		r.ctrl.DismissAttachmentErrors()
	case "clear":
		if err := r.ctrl.ClearMessages(ctx); err != nil {
			return false, err
		}
		r.out.println(DimStyle.Render("conversation cleared"))
	case "status":
		r.out.println(formatStatus(r.ctrl.State(), r.ctrl.PollInterval(), r.cfg.Bridge.URL))
	case "config":
		return false, r.cmdConfig(cmd.Args)
	case "quit":
		return true, nil
	}
	return false, nil
}

func (r *REPL) printHelp() {
	r.out.println(TitleStyle.Render("Commands"))
	for _, c := range commandTable {
		r.out.printf("  %-20s %s\n", c.usage, DimStyle.Render(c.help))
	}
	r.out.println(DimStyle.Render("  Text is sent as a message. End a line with ' &' to send in the background."))
}

// =============================================================================
// MESSAGES
// =============================================================================

// send issues a foreground request and prints the resulting turn.
func (r *REPL) send(ctx context.Context, content string) error {
	return r.foreground(func() error {
		return r.ctrl.Send(ctx, content, r.sc)
	})
}

// foreground runs a blocking controller call with progress output, then
// prints the newest assistant turn. Generation failures are shown on the
// turn itself.
func (r *REPL) foreground(call func() error) error {
	r.progressMu.Lock()
	r.lastProgress = ""
	r.progressMu.Unlock()

	r.waiting.Store(true)
	err := call()
	r.waiting.Store(false)

	if err != nil && !errors.Is(err, session.ErrGeneration) {
		return err
	}
	if last, ok := r.ctrl.State().LastMessage(); ok && last.Role == model.RoleAssistant {
		r.out.println(formatTurn(last, r.md))
	}
	return nil
}

// sendBackground issues a request without blocking the prompt.
func (r *REPL) sendBackground(ctx context.Context, content string) error {
	known := make(map[string]struct{})
	for _, m := range r.ctrl.State().Messages {
		known[m.ID] = struct{}{}
	}
	sc := r.sc.Clone()

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		err := r.ctrl.Send(ctx, content, sc)
		if err != nil && !errors.Is(err, session.ErrGeneration) {
			DisplayError(r.out, err)
			return
		}
		if reply, ok := replyTo(r.ctrl.State().Messages, content, known); ok {
			r.out.println("\n" + formatTurn(reply, r.md))
		}
	}()
	r.out.println(DimStyle.Render("sent in background; /cancel to stop"))
	return nil
}

func (r *REPL) cmdRegen(ctx context.Context, args []string) error {
	n := 0
	if len(args) > 0 {
		v, err := ParseIntWithValidation(args[0], "turn number")
		if err != nil {
			return NewValidationError("turn", args[0], err.Error())
		}
		n = v
	}
	target, ok := assistantByNumber(r.ctrl.State().Messages, n)
	if !ok {
		return NewValidationError("turn", strings.Join(args, " "), "no such assistant turn")
	}
	return r.foreground(func() error {
		return r.ctrl.Regenerate(ctx, target.ID)
	})
}

func (r *REPL) cmdChoose(ctx context.Context, args []string) error {
	msg, ok := openInteraction(r.ctrl.State().Messages)
	if !ok {
		return session.ErrNoInteraction
	}
	selection, err := resolveSelection(msg.Interaction, args)
	if err != nil {
		return err
	}
	return r.foreground(func() error {
		return r.ctrl.ResolveInteraction(ctx, msg.ID, selection)
	})
}

// =============================================================================
// SESSION SETTINGS
// =============================================================================

func (r *REPL) cmdBrand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		r.out.println("brand: " + joinOrNone([]string{r.ctrl.BrandID()}))
		return nil
	}
	r.ctrl.SetBrand(ctx, args[0])
	r.sc = model.SendContext{}
	st := r.ctrl.State()
	r.out.printf("%s brand %s (ratio %s, mode %s)\n", SuccessStyle.Render("*"), st.BrandID, st.AspectRatio, st.GenerationMode)
	return nil
}

func (r *REPL) cmdRatio(args []string) error {
	if len(args) == 0 {
		r.out.println("aspect ratio: " + r.ctrl.State().AspectRatio)
		return nil
	}
	if !prefs.ValidAspectRatio(args[0]) {
		return &ValidationError{Field: "aspect ratio", Value: args[0], Reason: "expected W:H", Example: "/ratio 16:9"}
	}
	r.out.println("aspect ratio: " + r.ctrl.SetAspectRatio(args[0]))
	return nil
}

func (r *REPL) cmdMode(args []string) error {
	if len(args) == 0 {
		r.out.println("generation mode: " + r.ctrl.State().GenerationMode)
		return nil
	}
	r.out.println("generation mode: " + r.ctrl.SetGenerationMode(strings.ToLower(args[0])))
	return nil
}

func (r *REPL) cmdConfig(args []string) error {
	if len(args) > 0 {
		v, err := r.cfg.Get(args[0])
		if err != nil {
			return NewValidationError("config key", args[0], err.Error())
		}
		r.out.printf("%s = %v\n", args[0], v)
		return nil
	}
	keys := config.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := r.cfg.Get(k)
		r.out.printf("%s%v\n", RenderLabel(k), v)
	}
	return nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func (r *REPL) cmdAttach(paths []string) {
	if len(paths) > 0 {
		accepted, rejected := r.ctrl.AddFiles(paths)
		for _, a := range accepted {
			r.out.printf("%s %s\n", SuccessStyle.Render("+"), a.Name)
		}
		for _, rej := range rejected {
			r.out.printf("%s %s\n", WarningStyle.Render("!"), rej.Error())
		}
	}
	r.out.println(formatAttachments(r.ctrl.State().Attachments, r.width))
}

func (r *REPL) cmdAsset(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return ErrMissingArgument("path", "/asset library/hero.png")
	}
	for _, p := range paths {
		att, err := r.ctrl.AddAssetReference(ctx, p)
		if err != nil {
			return err
		}
		r.out.printf("%s %s\n", SuccessStyle.Render("+"), att.Name)
	}
	return nil
}

func (r *REPL) cmdDetach(args []string) error {
	if len(args) == 0 {
		return ErrMissingArgument("number", "/detach 1")
	}
	atts := r.ctrl.State().Attachments
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(atts) {
		return NewValidationError("attachment", args[0], fmt.Sprintf("choose 1-%d", len(atts)))
	}
	if r.ctrl.RemoveAttachment(atts[n-1].ID) {
		r.out.printf("%s %s\n", DimStyle.Render("-"), atts[n-1].Name)
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// syncWriter serializes output from the prompt loop, the notifier and
// background sends.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) println(line string) {
	fmt.Fprintln(s, line)
}

func (s *syncWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(s, format, args...)
}

func joinOrNone(vals []string) string {
	var kept []string
	for _, v := range vals {
		if v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return "(none)"
	}
	return strings.Join(kept, ", ")
}
