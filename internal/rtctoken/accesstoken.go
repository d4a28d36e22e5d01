// Package rtctoken 生成声网 AccessToken2（007）格式的 RTC 通话凭证
package rtctoken

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"sort"
	"strconv"
)

const version = "007"

const serviceTypeRtc uint16 = 1

// RTC 权限
const (
	PrivilegeJoinChannel        uint16 = 1
	PrivilegePublishAudioStream uint16 = 2
	PrivilegePublishVideoStream uint16 = 3
	PrivilegePublishDataStream  uint16 = 4
)

type rtcService struct {
	channel    string
	uid        uint32
	privileges map[uint16]uint32
}

func (s *rtcService) pack(buf *bytes.Buffer) {
	putUint16(buf, serviceTypeRtc)

	keys := make([]int, 0, len(s.privileges))
	for k := range s.privileges {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	putUint16(buf, uint16(len(keys)))
	for _, k := range keys {
		putUint16(buf, uint16(k))
		putUint32(buf, s.privileges[uint16(k)])
	}

	putString(buf, []byte(s.channel))
	// uid 为 0 时写空串，表示不限定用户
	uid := ""
	if s.uid != 0 {
		uid = strconv.FormatUint(uint64(s.uid), 10)
	}
	putString(buf, []byte(uid))
}

type accessToken struct {
	appID    string
	appCert  string
	issueTs  uint32
	expire   uint32 // 从签发起的秒数
	salt     uint32
	services []*rtcService
}

// signingKey = HMAC(salt, HMAC(issueTs, appCert))
func (t *accessToken) signingKey() []byte {
	var ts, salt bytes.Buffer
	putUint32(&ts, t.issueTs)
	putUint32(&salt, t.salt)

	h := hmac.New(sha256.New, ts.Bytes())
	h.Write([]byte(t.appCert))
	first := h.Sum(nil)

	h = hmac.New(sha256.New, salt.Bytes())
	h.Write(first)
	return h.Sum(nil)
}

func (t *accessToken) build() (string, error) {
	var info bytes.Buffer
	putString(&info, []byte(t.appID))
	putUint32(&info, t.issueTs)
	putUint32(&info, t.expire)
	putUint32(&info, t.salt)
	putUint16(&info, uint16(len(t.services)))
	for _, s := range t.services {
		s.pack(&info)
	}

	h := hmac.New(sha256.New, t.signingKey())
	h.Write(info.Bytes())
	signature := h.Sum(nil)

	var content bytes.Buffer
	putString(&content, signature)
	content.Write(info.Bytes())

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(content.Bytes()); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return version + base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

func putUint16(buf *bytes.Buffer, v uint16) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func putUint32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func putString(buf *bytes.Buffer, b []byte) {
	putUint16(buf, uint16(len(b)))
	buf.Write(b)
}
