package profile

import (
	"strings"
	"unicode"
)

// NameParts はプロファイルに保存する名前の構成要素を表す。
// フルネームは保存せず、ファーストネームとラストネームのイニシャルのみを保持する。
type NameParts struct {
	First       string
	LastInitial string
}

// DeriveNameParts は表示名からNamePartsを導出する。
//
//   - "Jane Doe"  -> {First: "Jane", LastInitial: "D"}
//   - "Jane"      -> {First: "Jane", LastInitial: "J"}
//   - ""          -> {First: "User", LastInitial: "U"}
//
// 3語以上の場合は先頭をファーストネーム、末尾の語のイニシャルを使用する。
func DeriveNameParts(displayName string) NameParts {
	fields := strings.Fields(displayName)
	if len(fields) == 0 {
		return NameParts{First: "User", LastInitial: "U"}
	}

	first := fields[0]
	initialSource := fields[len(fields)-1]
	initial := string(unicode.ToUpper([]rune(initialSource)[0]))

	return NameParts{First: first, LastInitial: initial}
}
