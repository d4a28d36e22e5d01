package rtctoken

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	ErrNotConfigured      = errors.New("rtc app id or certificate not configured")
	ErrInvalidCredentials = errors.New("rtc app id and certificate must be 32 hex characters")
)

// Issuer 持有声网 App ID 与 App Certificate，签发发布者（publisher）角色的 RTC token
type Issuer struct {
	appID       string
	certificate string

	now  func() time.Time
	salt func() uint32
}

func NewIssuer(appID, certificate string) *Issuer {
	return &Issuer{
		appID:       strings.TrimSpace(appID),
		certificate: strings.TrimSpace(certificate),
		now:         time.Now,
		salt:        randomSalt,
	}
}

func (i *Issuer) Configured() bool {
	return i != nil && i.appID != "" && i.certificate != ""
}

// Issue 为 channel 和 uid 生成 token，ttl 同时作为 token 和各项权限的有效期
func (i *Issuer) Issue(channel string, uid uint32, ttl time.Duration) (string, error) {
	if !i.Configured() {
		return "", ErrNotConfigured
	}
	if !isHex32(i.appID) || !isHex32(i.certificate) {
		return "", ErrInvalidCredentials
	}
	if channel == "" {
		return "", errors.New("empty channel name")
	}
	expire := uint32(ttl / time.Second)
	if expire == 0 {
		return "", fmt.Errorf("token ttl %s too short", ttl)
	}

	svc := &rtcService{
		channel: channel,
		uid:     uid,
		privileges: map[uint16]uint32{
			PrivilegeJoinChannel:        expire,
			PrivilegePublishAudioStream: expire,
			PrivilegePublishVideoStream: expire,
			PrivilegePublishDataStream:  expire,
		},
	}
	tok := &accessToken{
		appID:    i.appID,
		appCert:  i.certificate,
		issueTs:  uint32(i.now().Unix()),
		expire:   expire,
		salt:     i.salt(),
		services: []*rtcService{svc},
	}
	return tok.build()
}

// ParticipantID 声网 uid 是 32 位无符号整数，用 user id 取模，0 映射为 1。
// user id 超过 2^32-1 时不同用户可能得到相同 uid。
func ParticipantID(userID int64) uint32 {
	const m = int64(1<<32 - 1)
	uid := ((userID % m) + m) % m
	if uid == 0 {
		return 1
	}
	return uint32(uid)
}

// LoadCredentialsFile 读取旧部署使用的凭证文本：
//
//	APPID=xxxx
//	证书=xxxx  (或 CERTIFICATE=xxxx)
//
// 文件不存在时返回空值且不报错。
func LoadCredentialsFile(path string) (appID, certificate string, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case appID == "" && strings.HasPrefix(upper, "APPID"):
			appID = parseValue(line, len("APPID"))
		case certificate == "" && strings.HasPrefix(line, "证书"):
			certificate = parseValue(line, len("证书"))
		case certificate == "" && strings.HasPrefix(upper, "CERTIFICATE"):
			certificate = parseValue(line, len("CERTIFICATE"))
		}
	}
	return appID, certificate, sc.Err()
}

func parseValue(line string, prefixLen int) string {
	return strings.TrimSpace(strings.TrimLeft(line[prefixLen:], "=: \t"))
}

func isHex32(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func randomSalt() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano()%99999999) + 1
	}
	return binary.LittleEndian.Uint32(b[:])%99999999 + 1
}
