package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Renarion/hackathon-indrive-25/safety-agent/internal/models"

	"go.uber.org/zap"
)

// FilePlaceholder 参数中的输出文件占位符
const FilePlaceholder = "{file}"

// DefaultRecorderArgs arecord 录制 16bit 44.1kHz 单声道 WAV
var DefaultRecorderArgs = []string{"-q", "-f", "S16_LE", "-r", "44100", "-c", "1", "-t", "wav", FilePlaceholder}

const stopGrace = 2 * time.Second

// CommandRecorder 调用外部录音命令写入临时文件，SIGINT 结束录音
type CommandRecorder struct {
	command string
	args    []string
	dir     string
	logger  *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan error
	file   string
	last   string // 最近一次完成的录音文件
}

// NewCommandRecorder 创建录音器，dir 为空时使用系统临时目录
func NewCommandRecorder(command string, args []string, dir string, logger *zap.Logger) *CommandRecorder {
	if len(args) == 0 {
		args = DefaultRecorderArgs
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &CommandRecorder{
		command: command,
		args:    args,
		dir:     dir,
		logger:  logger,
	}
}

// RequestPermission 检查录音命令与输出目录
func (r *CommandRecorder) RequestPermission(ctx context.Context) error {
	if _, err := exec.LookPath(r.command); err != nil {
		return models.NewError(models.KindDeviceUnavailable, "find recorder", err)
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return models.NewError(models.KindPermission, "prepare recording dir", err)
		}
		return models.NewError(models.KindDeviceUnavailable, "prepare recording dir", err)
	}
	f, err := os.CreateTemp(r.dir, "writable-*.wav")
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return models.NewError(models.KindPermission, "prepare recording dir", err)
		}
		return models.NewError(models.KindDeviceUnavailable, "prepare recording dir", err)
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}

// StartRecording 启动录音进程
func (r *CommandRecorder) StartRecording(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return errors.New("recording already in progress")
	}

	f, err := os.CreateTemp(r.dir, "incident-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}
	f.Close()

	args := make([]string, len(r.args))
	for i, a := range r.args {
		args[i] = strings.ReplaceAll(a, FilePlaceholder, f.Name())
	}

	cmd := exec.Command(r.command, args...)
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	r.cmd = cmd
	r.exited = exited
	r.file = f.Name()
	r.logger.Debug("Recording started", zap.String("file", r.file), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// StopRecording 发送 SIGINT，超时后强制结束
func (r *CommandRecorder) StopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return nil
	}
	cmd, exited, file := r.cmd, r.exited, r.file
	r.cmd, r.exited, r.file = nil, nil, ""

	select {
	case err := <-exited:
		// 进程提前退出
		if err != nil {
			os.Remove(file)
			return fmt.Errorf("recorder exited early: %w", err)
		}
	default:
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			r.logger.Warn("Failed to interrupt recorder", zap.Error(err))
		}
		select {
		case <-exited:
		case <-time.After(stopGrace):
			_ = cmd.Process.Kill()
			<-exited
			r.logger.Warn("Recorder killed after stop timeout")
		}
	}

	r.last = file
	return nil
}

// RecordedAudio 读取最近一次录音并删除临时文件
func (r *CommandRecorder) RecordedAudio() ([]byte, error) {
	r.mu.Lock()
	file := r.last
	r.last = ""
	r.mu.Unlock()
	if file == "" {
		return nil, errors.New("no finished recording")
	}
	defer os.Remove(file)

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return data, nil
}

// Close 结束进行中的录音并清理文件
func (r *CommandRecorder) Close() error {
	if err := r.StopRecording(); err != nil {
		r.logger.Warn("Recorder stop failed on close", zap.Error(err))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last != "" {
		os.Remove(r.last)
		r.last = ""
	}
	return nil
}
