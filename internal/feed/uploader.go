package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// UploaderConfig описывает SFTP точку приема фидов
type UploaderConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	RemoteDir string
}

// Uploader доставляет отрендеренный фид на SFTP приемник маркетплейса
// (Google Merchant умеет забирать фиды по SFTP)
type Uploader struct {
	cfg    UploaderConfig
	logger interfaces.LoggerPort
}

// NewUploader создает SFTP загрузчик фидов
func NewUploader(cfg UploaderConfig, logger interfaces.LoggerPort) *Uploader {
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}
	return &Uploader{cfg: cfg, logger: logger}
}

// Upload выгружает содержимое фида в удаленный файл.
// Соединение устанавливается на каждый вызов: фиды выгружаются
// раз в сутки, держать постоянное соединение незачем
func (u *Uploader) Upload(ctx context.Context, remoteFileName string, content []byte) error {
	if u.cfg.Host == "" || u.cfg.User == "" || u.cfg.Password == "" {
		return fmt.Errorf("sftp: не заданы host, user или password")
	}

	sshCfg := &ssh.ClientConfig{
		User: u.cfg.User,
		Auth: []ssh.AuthMethod{ssh.Password(u.cfg.Password)},
		// TODO: проверка ключа хоста через known_hosts, когда приемник
		// получит постоянный адрес
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         20 * time.Second,
	}

	sshClient, err := u.dial(ctx, sshCfg)
	if err != nil {
		return err
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("sftp: создание клиента: %w", err)
	}
	defer client.Close()

	if err := client.MkdirAll(u.cfg.RemoteDir); err != nil {
		return fmt.Errorf("sftp: каталог %s: %w", u.cfg.RemoteDir, err)
	}

	remotePath := path.Join(u.cfg.RemoteDir, remoteFileName)
	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: создание файла %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("sftp: выгрузка %s: %w", remotePath, err)
	}

	u.logger.InfoWithContext(ctx, "Фид выгружен по SFTP",
		interfaces.LogField{Key: "remote_path", Value: remotePath},
		interfaces.LogField{Key: "bytes", Value: len(content)})
	return nil
}

// dial устанавливает SSH соединение с учетом отмены контекста:
// ssh.Dial сам по себе контекст не принимает
func (u *Uploader) dial(ctx context.Context, sshCfg *ssh.ClientConfig) (*ssh.Client, error) {
	addr := fmt.Sprintf("%s:%d", u.cfg.Host, u.cfg.Port)

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialResult{client: client, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			// соединение, открывшееся после отмены, закрывается
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, fmt.Errorf("sftp: соединение отменено: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("sftp: соединение с %s: %w", addr, r.err)
		}
		return r.client, nil
	}
}
