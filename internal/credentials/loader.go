// Package credentials は username,password 形式のフラットファイルから
// 資格情報ストアを構築し、ログイン判定を行います。
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotText は資格情報ファイルがテキストとして判別できなかった場合のエラーです。
var ErrNotText = errors.New("credentials file is not plain text")

// ParseStats は Parse の集計結果です。
type ParseStats struct {
	Lines     int   // 読み込んだ行数（空行を含む）
	Records   int   // 取り込んだ行数（重複を含む）
	Malformed []int // カンマを含まない、または長すぎてスキップした行番号（1始まり）
}

// MaxLineBytes は1行の最大長です。これを超える行は不正な行としてスキップします。
const MaxLineBytes = 64 * 1024

// Parse は r を1行ずつ読み、ユーザー名からパスワードへのマップを返します。
//
// 各行は最初のカンマで分割されるため、パスワードにはカンマを含められます。
// 空行は無視し、同じユーザー名が複数回現れた場合は最後の行が優先されます。
// カンマを含まない行と MaxLineBytes を超える行はロード全体を失敗させずにスキップし、
// ParseStats.Malformed に記録します。
func Parse(r io.Reader) (map[string]string, ParseStats, error) {
	creds := make(map[string]string)
	var stats ParseStats

	br := bufio.NewReaderSize(r, MaxLineBytes)
	for {
		raw, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			stats.Lines++
			stats.Malformed = append(stats.Malformed, stats.Lines)
			if err := discardLine(br); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, stats, fmt.Errorf("failed to read credentials: %w", err)
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("failed to read credentials: %w", err)
		}

		if len(raw) > 0 {
			stats.Lines++
			line := strings.TrimSpace(string(raw))
			if line != "" {
				username, password, ok := strings.Cut(line, ",")
				if ok {
					creds[username] = password
					stats.Records++
				} else {
					stats.Malformed = append(stats.Malformed, stats.Lines)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	return creds, stats, nil
}

// discardLine は長すぎる行の残りを改行まで読み捨てます。
func discardLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// LoadFile は path の資格情報ファイルを読み込みます。
// ファイルが存在しない場合のエラーは errors.Is(err, fs.ErrNotExist) を満たします。
func LoadFile(path string) (map[string]string, ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("failed to stat credentials file: %w", err)
	}
	if info.IsDir() {
		return nil, ParseStats{}, fmt.Errorf("credentials path %s is a directory", path)
	}
	if info.Size() > 0 {
		if err := ensureText(f); err != nil {
			return nil, ParseStats{}, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, ParseStats{}, fmt.Errorf("failed to rewind credentials file: %w", err)
		}
	}
	return Parse(f)
}

// ensureText はファイル先頭を判別し、text/plain 系でなければ ErrNotText を返します。
func ensureText(r io.Reader) error {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return fmt.Errorf("failed to detect credentials file type: %w", err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: detected %s", ErrNotText, mtype.String())
}
