package remote

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"github.com/zkfleet/zkfleet/common"
	"golang.org/x/crypto/ssh"
)

type sshChannel struct {
	record    common.ServerRecord
	client    *ssh.Client
	templates templates
	logger    *log.Logger
}

var _ common.Channel = &sshChannel{}

func (ch *sshChannel) InstallMonitor() error {
	return ch.run(stepInstallMonitor, commandData{})
}

func (ch *sshChannel) GrantRemoteAccess(mode string) error {
	return ch.run(stepGrantRemoteAccess, commandData{Mode: mode})
}

func (ch *sshChannel) StartDaemon(id int, ensemble, credential string) error {
	return ch.run(stepStartDaemon, commandData{ID: id, Ensemble: ensemble, Credential: credential})
}

func (ch *sshChannel) StartMonitorAgent(id int, ensemble, credential string) error {
	return ch.run(stepStartMonitorAgent, commandData{ID: id, Ensemble: ensemble, Credential: credential})
}

func (ch *sshChannel) StopDaemon(id int, ensemble, credential string) error {
	return ch.run(stepStopDaemon, commandData{ID: id, Ensemble: ensemble, Credential: credential})
}

// SendFile copies localPath to remotePath over SFTP, creating the remote
// directory first. Relative remote paths resolve against the login
// directory.
func (ch *sshChannel) SendFile(localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	client, err := sftp.NewClient(ch.client)
	if err != nil {
		return fmt.Errorf("%w: sftp: %v", common.ErrRemoteCommandFailed, err)
	}
	defer client.Close()

	if dir := path.Dir(remotePath); dir != "." {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("%w: mkdir %s: %v", common.ErrRemoteCommandFailed, dir, err)
		}
	}
	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrRemoteCommandFailed, remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("%w: write %s: %v", common.ErrRemoteCommandFailed, remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", common.ErrRemoteCommandFailed, remotePath, err)
	}
	ch.logger.Printf("%s: sent %s to %s", ch.record.Host, localPath, remotePath)
	return nil
}

func (ch *sshChannel) Close() error {
	return ch.client.Close()
}

// run executes one lifecycle command. The rendered command may hold
// secrets, so only the step name is logged.
func (ch *sshChannel) run(step string, data commandData) error {
	data.User = ch.record.User
	data.Secret = ch.record.Secret
	cmd, err := ch.templates.render(step, data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrRemoteCommandFailed, step, err)
	}

	sess, err := ch.client.NewSession()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrRemoteCommandFailed, step, err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", common.ErrRemoteCommandFailed, step, err, strings.TrimSpace(string(out)))
	}
	ch.logger.Printf("%s: %s done", ch.record.Host, step)
	return nil
}
