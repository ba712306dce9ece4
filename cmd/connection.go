// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/skyrelay/pkg/link"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SKYRELAY_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// isWebSocketDevice reports whether the device string names a websocket bridge
func isWebSocketDevice(device string) bool {
	return strings.HasPrefix(device, "ws://") || strings.HasPrefix(device, "wss://")
}

// newDialer builds a link dialer from the device flags
func newDialer(device string) (*link.Dialer, error) {
	d := &link.Dialer{SkipTLSVerify: wsNoSSLVerify}
	if isWebSocketDevice(device) && wsUsername != "" {
		password, err := GetPassword()
		if err != nil {
			return nil, err
		}
		d.Username = wsUsername
		d.Password = password
	}
	return d, nil
}

// describeDevice returns a one-line connection summary
func describeDevice(device string, baud int) string {
	switch {
	case isWebSocketDevice(device):
		return fmt.Sprintf("WebSocket: %s", device)
	case strings.HasPrefix(device, "tcp:"):
		return fmt.Sprintf("TCP: %s", strings.TrimPrefix(device, "tcp:"))
	default:
		return fmt.Sprintf("Serial: %s @ %d baud", device, baud)
	}
}

// OpenConnection opens the device named by --device
func OpenConnection(ctx context.Context) (link.Link, string, error) {
	if deviceName == "" {
		return nil, "", errors.New("--device must be specified")
	}

	dialer, err := newDialer(deviceName)
	if err != nil {
		return nil, "", err
	}
	conn, err := dialer.Open(ctx, deviceName, baudRate)
	if err != nil {
		return nil, "", err
	}
	return conn, describeDevice(deviceName, baudRate), nil
}
