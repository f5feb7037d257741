// Package security はアプリケーションのセキュリティ機能を提供する。
//
// PostSanitizer は投稿本文のHTMLをサニタイズし、
// 許可リストに含まれないタグと属性を除去する。
// bluemondayライブラリのポリシーで許可リストを表現する。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DefaultPostTags は許可タグ未指定時に通過させるタグの一覧。
var DefaultPostTags = []string{
	"strong", "em", "b", "i", "p", "code", "pre", "tt", "samp", "kbd", "var",
	"sub", "sup", "dfn", "cite", "big", "small", "address", "hr", "br",
	"div", "span", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
	"dl", "dt", "dd", "abbr", "acronym", "a", "img", "blockquote", "del", "ins",
}

// PostAttributes は全タグで許可する属性の一覧。
var PostAttributes = []string{
	"id", "class", "href", "style", "src", "title", "width", "height", "alt",
	"value", "target", "rel", "align", "disabled",
}

// PostStyleProperties はstyle属性で許可するCSSプロパティの一覧。
// 値はbluemondayのプロパティごとの検証を通ったものだけが残る。
var PostStyleProperties = []string{
	"color", "background-color", "text-align", "text-decoration",
	"font-weight", "font-style", "font-size", "font-family",
	"margin", "padding", "width", "height", "float", "vertical-align",
}

// Sanitizer はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type Sanitizer interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// PostSanitizer はSanitizerの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type PostSanitizer struct {
	policy *bluemonday.Policy
}

// NewPostSanitizer はPostSanitizerを生成する。
// tagsが空の場合はDefaultPostTagsを許可する。
// 属性はPostAttributes、style属性内はPostStylePropertiesのみ許可し、URLはhttp, https, mailtoと相対URLのみ通過させる。
func NewPostSanitizer(tags []string) *PostSanitizer {
	if len(tags) == 0 {
		tags = DefaultPostTags
	}

	p := bluemonday.NewPolicy()
	p.AllowElements(tags...)
	p.AllowAttrs(PostAttributes...).Globally()
	p.AllowStyles(PostStyleProperties...).Globally()

	// javascript: 等のスキームはここで拒否される
	p.AllowStandardURLs()

	return &PostSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *PostSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

var _ Sanitizer = (*PostSanitizer)(nil)
