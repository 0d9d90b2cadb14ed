package remote

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// Session runs commands on one remote host. x/crypto/ssh has no native
// context support, so cancellation is implemented by signalling the
// remote process and closing the session.
type Session interface {
	Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error
	Close() error
}

type session struct {
	conn *ssh.Client
}

func newSession(conn *ssh.Client) Session {
	return &session{conn: conn}
}

func (s *session) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	sess, err := s.conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer sess.Close()

	sess.Stdout = stdout
	sess.Stderr = stderr

	if err := sess.Start(cmd); err != nil {
		return fmt.Errorf("failed to start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGTERM)
		_ = sess.Close()
		<-done
		return ctx.Err()
	}
}

func (s *session) Close() error {
	// The underlying connection is owned by the client and reused
	// across sessions.
	return nil
}
