// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package mail delivers OTP codes: over SMTP, to the log in development,
// with retries, and asynchronously after commit.
package mail

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"time"
)

// OtpSubject is the subject line of every OTP mail.
const OtpSubject = "[Kyonggi Board] 이메일 인증번호"

// otpBody renders the plain text body.
func otpBody(code string, validity time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kyonggi Board 회원가입 인증번호는 %s 입니다.\n\n", code)
	if minutes := int(validity.Minutes()); minutes > 0 {
		fmt.Fprintf(&b, "인증번호는 %d분 동안 유효합니다.\n", minutes)
	}
	b.WriteString("본인이 요청하지 않았다면 이 메일을 무시하세요.\n")
	return b.String()
}

// buildOtpMessage renders an RFC 5322 message carrying code.
func buildOtpMessage(from, to, code string, validity time.Duration, now time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	header("From", from)
	header("To", to)
	header("Subject", mime.BEncoding.Encode("UTF-8", OtpSubject))
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(otpBody(code, validity), "\n", "\r\n"))
	return b.Bytes()
}
