// identity.go resolves which user identity a report is attributed to.

package crashline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DeviceIDSource supplies a stable per-install identifier.
type DeviceIDSource interface {
	DeviceID() (string, error)
}

// StaticDeviceID is a DeviceIDSource that always returns the same value.
type StaticDeviceID string

// DeviceID returns s.
func (s StaticDeviceID) DeviceID() (string, error) {
	return string(s), nil
}

// FileDeviceID persists a generated UUID in a file so it survives restarts.
type FileDeviceID struct {
	path string

	mu     sync.Mutex
	cached string
}

// NewFileDeviceID creates a device id source stored at path.
func NewFileDeviceID(path string) *FileDeviceID {
	return &FileDeviceID{path: path}
}

// DeviceID reads the stored id, generating and saving one on first use.
func (f *FileDeviceID) DeviceID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != "" {
		return f.cached, nil
	}

	data, err := os.ReadFile(f.path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			f.cached = id
			return id, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return "", fmt.Errorf("create device id dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	f.cached = id
	return id, nil
}

// resolveIdentity picks the identity for a report.
//
// Precedence: explicit userInfo with an identifier, then the login user, then
// the device id (marked anonymous, named after the machine). Whatever wins gets
// the device id as its UUID when it has none.
func resolveIdentity(userInfo *UserInfo, user, deviceID, machineName string) *UserInfo {
	info := userInfo.clone()

	if info == nil || info.Identifier == "" {
		switch {
		case strings.TrimSpace(user) != "":
			info = &UserInfo{Identifier: user}
		case strings.TrimSpace(deviceID) != "":
			info = &UserInfo{
				Identifier:  deviceID,
				IsAnonymous: true,
				FullName:    machineName,
				UUID:        deviceID,
			}
		}
	}

	if info != nil && info.UUID == "" {
		info.UUID = deviceID
	}
	return info
}
