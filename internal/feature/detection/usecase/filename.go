package usecase

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fallbackBaseName は表示用ファイル名がサニタイズ後に空になった場合の基底名です。
const fallbackBaseName = "upload"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Extension はファイル名の最後の拡張子を小文字で返します。拡張子がなければ空文字です。
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// SanitizeFilename はアップロードされたファイル名を表示専用の安全な名前に変換します。
// NFKD正規化後にASCII以外を除去し、パス区切りと空白をアンダースコアにまとめ、
// 英数字・"_"・"."・"-" 以外を取り除きます。結果が空または拡張子のみになった場合は
// "upload.<ext>" を返します。
func SanitizeFilename(filename, ext string) string {
	decomposed := norm.NFKD.String(filename)

	var b strings.Builder
	for _, r := range decomposed {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	s := b.String()
	s = strings.ReplaceAll(s, "/", " ")
	s = strings.ReplaceAll(s, `\`, " ")
	s = strings.Join(strings.Fields(s), "_")
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	s = strings.Trim(s, "._")

	if s == "" || strings.EqualFold(s, ext) {
		return fallbackBaseName + "." + ext
	}
	return s
}
