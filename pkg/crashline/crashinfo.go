// crashinfo.go writes hand-off files for an out-of-process native crash reporter.

package crashline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ClientInfoFile is the name of the SDK identity file in the crash info directory.
const ClientInfoFile = "ClientInfo"

// writeClientInfo creates dir and records "version\nname\nurl" for the native
// reporter to attach to the reports it sends.
func writeClientInfo(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create crash info dir: %w", err)
	}
	ci := DefaultClientInfo()
	content := strings.Join([]string{ci.Version, ci.Name, ci.ClientURL}, "\n")
	return os.WriteFile(filepath.Join(dir, ClientInfoFile), []byte(content), 0o600)
}

// writeExceptionInfo records the managed view of a crash (type, message and
// stack) under a fresh id so the native reporter can merge it into its report.
func writeExceptionInfo(dir string, err error) error {
	if err == nil {
		return errors.New("nil error")
	}
	if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
		return fmt.Errorf("create crash info dir: %w", mkErr)
	}

	typeName := fmt.Sprintf("%T", err)
	short := typeName
	if i := strings.LastIndex(short, "."); i >= 0 {
		short = short[i+1:]
	}
	var stack string
	if st, ok := err.(StackTracer); ok {
		stack = st.StackTrace()
	}

	content := strings.Join([]string{typeName, short + ": " + err.Error(), stack}, "\n")
	return os.WriteFile(filepath.Join(dir, uuid.NewString()), []byte(content), 0o600)
}
