package email

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"RosterDashboard/src/storage"
	"RosterDashboard/src/utils"
)

var ErrNoRosterAttachment = errors.New("mail has no roster attachment")

// RosterExtensions 认作花名册的附件扩展名，旧的二进制 .xls 无法解码所以不在其中
var RosterExtensions = []string{".xlsx", ".csv"}

// RosterAttachmentHandler 把邮件中的第一个花名册附件保存到 DataDir
type RosterAttachmentHandler struct {
	DataDir   string
	processed map[uint32]string // UID -> 已保存的路径
	mu        sync.RWMutex
	logger    *storage.Logger
}

func NewRosterAttachmentHandler(dataDir string, logger *storage.Logger) *RosterAttachmentHandler {
	if logger == nil {
		logger = storage.Discard()
	}
	return &RosterAttachmentHandler{
		DataDir:   dataDir,
		processed: make(map[uint32]string),
		logger:    logger,
	}
}

// IsProcessed 该邮件是否已经保存过
func (h *RosterAttachmentHandler) IsProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.processed[uid]
	return ok
}

func (h *RosterAttachmentHandler) markAsProcessed(uid uint32, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processed[uid] = path
}

// Handle 保存附件并返回路径，已处理的邮件直接返回上次的路径
func (h *RosterAttachmentHandler) Handle(email *Email) (string, error) {
	h.mu.RLock()
	prev, ok := h.processed[email.UID]
	h.mu.RUnlock()
	if ok {
		return prev, nil
	}

	var attachment *Attachment
	for _, a := range email.Attachments {
		if isRoster(a.Filename) {
			attachment = a
			break
		}
	}
	if attachment == nil {
		return "", fmt.Errorf("%w: %q", ErrNoRosterAttachment, email.Subject)
	}

	if err := os.MkdirAll(h.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	// 附件名可能带路径，只取文件名
	path := filepath.Join(h.DataDir, filepath.Base(filepath.Clean("/"+attachment.Filename)))

	// 先写临时文件再改名，监控方只会看到完整的文件
	tmp, err := os.CreateTemp(h.DataDir, ".roster-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(attachment.Content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close attachment: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save attachment: %w", err)
	}

	h.markAsProcessed(email.UID, path)
	h.logger.Info("roster attachment saved", "uid", email.UID, "subject", email.Subject, "path", path, "bytes", len(attachment.Content))
	return path, nil
}

func isRoster(name string) bool {
	return utils.Contains(RosterExtensions, strings.ToLower(filepath.Ext(name)))
}
