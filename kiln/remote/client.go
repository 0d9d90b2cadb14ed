package remote

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/kilnci/kiln/kiln/utils"
	"golang.org/x/crypto/ssh"
)

// Host identifies a remote build host reachable over SSH.
type Host struct {
	Name    string
	Address string
	User    string
	KeyPath string
}

// Client dials build hosts and hands out sessions. Connections are
// cached per user@address and torn down on Close.
type Client interface {
	Connect(ctx context.Context, host Host) (Session, error)
	Close() error
}

type client struct {
	connections map[string]*ssh.Client
}

func NewClient() Client {
	return &client{
		connections: make(map[string]*ssh.Client),
	}
}

func (c *client) Connect(ctx context.Context, host Host) (Session, error) {
	key := fmt.Sprintf("%s@%s", host.User, host.Address)
	if conn, ok := c.connections[key]; ok {
		return newSession(conn), nil
	}

	keyPath, err := utils.ExpandPath(host.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve SSH key path %s: %w", host.KeyPath, err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	config := &ssh.ClientConfig{
		User: host.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: known_hosts verification
	}

	addr := host.Address
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.connections[key] = conn
	return newSession(conn), nil
}

func (c *client) Close() error {
	var firstErr error
	for key, conn := range c.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.connections, key)
	}
	return firstErr
}
