// Package command routes chat input: slash commands are handled here and
// everything else becomes a conversation turn.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/mnemo/internal/fsutil"
	"github.com/felixgeelhaar/mnemo/internal/runtime"
	"github.com/felixgeelhaar/mnemo/internal/transcript"
)

// Runtime is the part of runtime.Runtime the dispatcher drives.
type Runtime interface {
	HandleTurn(ctx context.Context, sessionID, message string) (string, error)
	SetMode(sessionID string, mode runtime.Mode) string
	Recent(ctx context.Context, sessionID string) ([]transcript.Turn, error)
	SummarizeDialogue(ctx context.Context, sessionID string) (string, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// Result is what a front end shows after one input line.
type Result struct {
	Reply string
	// Exit asks the front end to end the conversation loop.
	Exit bool
}

const HelpText = `Here is what I can do:
  /help              show this list
  /clear             erase this session's memory
  /exit              leave the chat
  /summary           summarize the conversation so far
  /save              save the conversation to a text file
Conversation modes:
  /mode default      regular mode
  /mode mentor       mentor mode
  /mode funny        funny mode
  /mode reflection   reflection mode
Or just write me something and I will answer!`

const (
	emptyMemory   = "Memory is empty. Write something to start the conversation!"
	retryMessage  = "Sorry, I could not come up with a reply. Please try again."
	goodbye       = "Goodbye!"
	clearedMemory = "Memory cleared!"
)

type Dispatcher struct {
	rt        Runtime
	exportDir string
}

// New returns a dispatcher that writes /save exports into exportDir.
func New(rt Runtime, exportDir string) *Dispatcher {
	return &Dispatcher{rt: rt, exportDir: exportDir}
}

// Dispatch handles one line of input. Errors from turns keep their
// runtime.ErrGeneration / runtime.ErrDurability classification.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, input string) (Result, error) {
	line := strings.TrimSpace(input)
	lower := strings.ToLower(line)
	fields := strings.Fields(lower)

	switch {
	case len(fields) > 0 && fields[0] == "/mode":
		return d.mode(sessionID, fields[1:]), nil
	case lower == "/help":
		return Result{Reply: HelpText}, nil
	case lower == "/default", lower == "/mentor", lower == "/funny", lower == "/reflection":
		return Result{Reply: "Please use the /mode command to change the conversation mode, e.g. /mode " + strings.TrimPrefix(lower, "/") + "."}, nil
	case lower == "/save":
		return d.save(ctx, sessionID)
	case lower == "/exit" || lower == "exit":
		return Result{Reply: goodbye, Exit: true}, nil
	case lower == "/clear":
		if err := d.rt.ClearSession(ctx, sessionID); err != nil {
			return Result{}, err
		}
		return Result{Reply: clearedMemory}, nil
	case lower == "/summary":
		return d.summary(ctx, sessionID)
	}

	reply, err := d.rt.HandleTurn(ctx, sessionID, input)
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: reply}, nil
}

func (d *Dispatcher) mode(sessionID string, args []string) Result {
	if len(args) == 0 {
		return Result{Reply: "Please name a conversation mode. Available modes: " + runtime.ModeNames() + "."}
	}
	mode, err := runtime.ParseMode(args[0])
	if err != nil {
		return Result{Reply: "Unknown conversation mode. Available modes: " + runtime.ModeNames() + "."}
	}
	greeting := d.rt.SetMode(sessionID, mode)
	return Result{Reply: fmt.Sprintf("Mode '%s' activated!\n\n%s", mode, greeting)}
}

func (d *Dispatcher) save(ctx context.Context, sessionID string) (Result, error) {
	turns, err := d.rt.Recent(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if len(turns) == 0 {
		return Result{Reply: emptyMemory}, nil
	}

	if err := os.MkdirAll(d.exportDir, 0750); err != nil {
		return Result{}, fmt.Errorf("failed to create export directory: %w", err)
	}
	path := ExportPath(d.exportDir, sessionID)
	if err := fsutil.WriteFileAtomic(path, []byte(FormatTranscript(turns))); err != nil {
		return Result{}, err
	}
	return Result{Reply: "History saved to " + path + "!"}, nil
}

func (d *Dispatcher) summary(ctx context.Context, sessionID string) (Result, error) {
	summary, err := d.rt.SummarizeDialogue(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if summary == "" {
		return Result{Reply: emptyMemory}, nil
	}
	return Result{Reply: "Summary:\n" + summary}, nil
}

// ExportPath is where /save writes the session's transcript.
func ExportPath(dir, sessionID string) string {
	return filepath.Join(dir, "session_"+sessionID+".txt")
}

// FormatTranscript renders turns as "Role: message" lines.
func FormatTranscript(turns []transcript.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		role := string(t.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines[i] = role + ": " + t.Message
	}
	return strings.Join(lines, "\n")
}

// ErrorReply turns a Dispatch error into text for the user. Generation
// failures read as a retry hint; anything touching memory is reported as an
// error so lost writes are not silent.
func ErrorReply(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, runtime.ErrGeneration):
		return retryMessage
	case errors.Is(err, runtime.ErrDurability):
		return "ERROR: memory could not be saved: " + err.Error()
	default:
		return "ERROR: " + err.Error()
	}
}
