// Package email 从邮箱拉取花名册附件
package email

import (
	// 标准库导入
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	// 第三方库导入
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	// 项目内部导入
	"RosterDashboard/src/config"
	"RosterDashboard/src/storage"
)

/******************** 常量定义 ********************/
const (
	MaxFetchMessages   = 100            // 单次最大获取邮件数量
	FetchBufferSize    = 10             // 邮件获取通道缓冲区大小
	RecentMailDuration = 72 * time.Hour // 只看最近三天的未读邮件
)

var (
	ErrNotConnected = errors.New("not connected to mail server")
	ErrNoRosterMail = errors.New("no unread mail matches the roster subject")
)

/******************** 接口定义 ********************/

// MailService 邮件服务接口
type MailService interface {
	Connect() error
	Disconnect()
	FetchUnreadEmails() ([]*Email, error)
}

// AttachmentHandler 处理选中的邮件，返回保存的文件路径
type AttachmentHandler interface {
	Handle(email *Email) (string, error)
}

/******************** 数据结构 ********************/

// Email 邮件基础数据
type Email struct {
	UID         uint32
	Date        time.Time
	From        string // 已解码
	Subject     string // 已解码
	Attachments []*Attachment
}

// Attachment 邮件附件
type Attachment struct {
	Filename string
	Content  []byte
}

/******************** 邮件客户端实现 ********************/

// Client IMAP 客户端，方法都是线程安全的
type Client struct {
	server    string // host:port
	username  string
	password  string
	client    *client.Client
	mu        sync.Mutex
	connected bool
	logger    *storage.Logger
}

// NewClient 用配置创建客户端，不会立即连接
func NewClient(c config.EmailConfig, logger *storage.Logger) *Client {
	if logger == nil {
		logger = storage.Discard()
	}
	return &Client{
		server:   c.Server,
		username: c.Username,
		password: c.Password,
		logger:   logger,
	}
}

// Connect 建立 TLS 连接并登录，已有连接可用时直接返回
func (s *Client) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		// 连接已失效则重置
		s.client.Logout()
		s.client = nil
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.server, err)
	}
	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("login as %s: %w", s.username, err)
	}

	s.client = c
	s.connected = true
	return nil
}

func (s *Client) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
	s.connected = false
}

// FetchUnreadEmails 获取收件箱中最近的未读邮件
func (s *Client) FetchUnreadEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}
	if _, err := s.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = time.Now().Add(-RecentMailDuration)

	ids, err := s.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search INBOX: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// 只保留最新的一批
	if len(ids) > MaxFetchMessages {
		ids = ids[len(ids)-MaxFetchMessages:]
	}
	return s.fetchMessages(ids)
}

func (s *Client) fetchMessages(ids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, FetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.client.Fetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		email, err := parseEmail(msg, section, s.logger)
		if err != nil {
			s.logger.Warning("skipping unparsable mail", "seq", msg.SeqNum, "error", err)
			continue
		}
		emails = append(emails, email)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return emails, nil
}

/******************** 邮件解析相关 ********************/

func parseEmail(msg *imap.Message, section *imap.BodySectionName, logger *storage.Logger) (*Email, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, errors.New("message has no body")
	}
	email, err := ReadEmail(r, logger)
	if err != nil {
		return nil, err
	}
	email.UID = msg.Uid
	if email.Date.IsZero() {
		email.Date = msg.InternalDate
	}
	return email, nil
}

// ReadEmail 解析一封 RFC 5322 邮件，收集所有附件
func ReadEmail(r io.Reader, logger *storage.Logger) (*Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("create mail reader: %w", err)
	}

	header := mr.Header
	date, _ := header.Date() // 日期无法解析时使用 INTERNALDATE
	email := &Email{
		Date:    date,
		From:    decodeHeader(header.Get("From")),
		Subject: decodeHeader(header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 跳过损坏的部分
			logger.Debug("skipping mail part", "subject", email.Subject, "error", err)
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			continue
		}
		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			logger.Debug("attachment without filename", "subject", email.Subject)
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, p.Body); err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", filename, err)
		}
		email.Attachments = append(email.Attachments, &Attachment{
			Filename: decodeHeader(filename),
			Content:  buf.Bytes(),
		})
	}
	return email, nil
}

/******************** 工具函数 ********************/

// decodeHeader 解码 =?charset?encoding?text?= 格式的邮件头，失败时原样返回
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader 按 IANA 名称查找编码，例如 windows-1252、gbk
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("charset %s: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %s is not supported", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

/******************** 业务逻辑函数 ********************/

// FetchLatestRoster 连接邮箱，找到主题包含 subject 的最新邮件并交给 handler 保存
func FetchLatestRoster(svc MailService, handler AttachmentHandler, subject string, logger *storage.Logger) (string, error) {
	start := time.Now()
	logger.Info("checking mailbox", "subject", subject)

	if err := svc.Connect(); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer svc.Disconnect()

	emails, err := svc.FetchUnreadEmails()
	if err != nil {
		return "", fmt.Errorf("fetch unread mail: %w", err)
	}

	target := filterLatestTargetEmail(emails, subject)
	if target == nil {
		logger.Info("no roster mail found", "unread", len(emails))
		return "", ErrNoRosterMail
	}

	path, err := handler.Handle(target)
	if err != nil {
		return "", err
	}
	logger.Info("roster fetched", "path", path, "from", target.From, "elapsed", time.Since(start))
	return path, nil
}

// filterLatestTargetEmail 返回主题包含关键词的最新邮件，关键词不区分大小写
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	keyword = strings.ToLower(keyword)
	var targetEmails []*Email
	for _, email := range emails {
		if strings.Contains(strings.ToLower(email.Subject), keyword) {
			targetEmails = append(targetEmails, email)
		}
	}
	if len(targetEmails) == 0 {
		return nil
	}

	// 按日期降序排序
	sort.SliceStable(targetEmails, func(i, j int) bool {
		return targetEmails[i].Date.After(targetEmails[j].Date)
	})
	return targetEmails[0]
}
