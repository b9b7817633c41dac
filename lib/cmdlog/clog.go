// Package cmdlog traces the commands and queries sent to an instrument.
package cmdlog

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/gotmc/fourprobe/lib/instrument"
)

func isAscii(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// Traced wraps an instrument connection and logs every transfer at debug
// level under the instrument's name.
type Traced struct {
	conn instrument.Conn
	name string
	log  zerolog.Logger
}

// Wrap returns c traced to log. With debug logging disabled the wrapper
// only costs a level check per call.
func Wrap(c instrument.Conn, name string, log zerolog.Logger) *Traced {
	return &Traced{conn: c, name: name, log: log}
}

func (t *Traced) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	err := t.conn.Command(cmd)
	if err != nil {
		t.log.Debug().Err(err).Msgf("%s: %s", t.name, CmdStyle.Render(cmd))
		return err
	}
	t.log.Debug().Msgf("%s: %s()", t.name, CmdStyle.Render(cmd))
	return nil
}

func (t *Traced) Query(q string) (string, error) {
	a, err := t.conn.Query(q)
	if err != nil {
		t.log.Debug().Err(err).Msgf("%s: query %s", t.name, CmdStyle.Render(q))
		return a, err
	}
	t.log.Debug().Msgf("%s: %s", t.name, Describe(q, a))
	return a, nil
}

// Describe renders a query and its answer for the log: quoted text when the
// answer is printable, hex otherwise.
func Describe(q, a string) string {
	q = CmdStyle.Render(q)
	if len(a) == 0 {
		return fmt.Sprintf("%s: %s", q, R1Style.Render("<no response>"))
	}
	if isAscii(a) {
		return fmt.Sprintf("%s: [%d] %s", q, len(a), R2Style.Render(fmt.Sprintf("%q", a)))
	} else if len(a) < 32 {
		return fmt.Sprintf("%s: [%d] %q (% 2x)", q, len(a), a, []byte(a))
	}
	return fmt.Sprintf("%s: [%d] % 2x", q, len(a), []byte(a))
}
