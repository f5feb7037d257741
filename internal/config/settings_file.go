package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// SettingsFile はYAMLで記述されたSettingsの上書き値。
// 未指定の項目は既定値のまま残すため、全てポインタで保持する。
type SettingsFile struct {
	UserClass                 *string   `yaml:"user_class"`
	DashboardNamespacePath    *string   `yaml:"dashboard_namespace_path"`
	HomePagePath              *string   `yaml:"home_page_path"`
	LoginPath                 *string   `yaml:"login_path"`
	LogoutPath                *string   `yaml:"logout_path"`
	LogoutMethod              *string   `yaml:"logout_method"`
	EnableFileUpload          *bool     `yaml:"enable_file_upload"`
	PostTitleCharacterLimit   *int      `yaml:"post_title_character_limit"`
	PostExcerptCharacterLimit *int      `yaml:"post_excerpt_character_limit"`
	WhitelistedPostHTMLTags   *[]string `yaml:"whitelisted_post_html_tags"`
	DisqusForumShortname      *string   `yaml:"disqus_forum_shortname"`
	DiscourseName             *string   `yaml:"discourse_name"`
	EmailRegexp               *string   `yaml:"email_regexp"`
	SubscriptionEmailFrom     *string   `yaml:"subscription_email_from"`
	SearchAdapter             *string   `yaml:"search_adapter"`
	Layout                    *string   `yaml:"layout"`
	MediaStorage              *string   `yaml:"media_storage"`
	S3Bucket                  *string   `yaml:"s3_bucket"`
	PostTypes                 *[]string `yaml:"post_types"`
}

// LoadSettingsFile はYAMLファイルを読み込んでSettingsFileを返す。
func LoadSettingsFile(path string) (*SettingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return ParseSettingsFile(data)
}

// ParseSettingsFile はYAMLをSettingsFileに変換する。
// 正規表現と検索アダプタ名はここで検証する。
func ParseSettingsFile(data []byte) (*SettingsFile, error) {
	var f SettingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if f.EmailRegexp != nil {
		if _, err := regexp.Compile(*f.EmailRegexp); err != nil {
			return nil, fmt.Errorf("invalid email_regexp: %w", err)
		}
	}
	if f.SearchAdapter != nil {
		if _, err := ParseSearchAdapterName(*f.SearchAdapter); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Apply は指定された項目だけをSettingsに反映する。
// Configureに渡す関数の中で呼び出すことを想定している。
func (f *SettingsFile) Apply(s *Settings) {
	setString(&s.UserClass, f.UserClass)
	setString(&s.DashboardNamespacePath, f.DashboardNamespacePath)
	setString(&s.HomePagePath, f.HomePagePath)
	setString(&s.LoginPath, f.LoginPath)
	setString(&s.LogoutPath, f.LogoutPath)
	setString(&s.LogoutMethod, f.LogoutMethod)
	setString(&s.DisqusForumShortname, f.DisqusForumShortname)
	setString(&s.DiscourseName, f.DiscourseName)
	setString(&s.SubscriptionEmailFrom, f.SubscriptionEmailFrom)
	setString(&s.Layout, f.Layout)
	setString(&s.S3Bucket, f.S3Bucket)

	if f.EnableFileUpload != nil {
		s.EnableFileUpload = *f.EnableFileUpload
	}
	if f.PostTitleCharacterLimit != nil {
		s.PostTitleCharacterLimit = *f.PostTitleCharacterLimit
	}
	if f.PostExcerptCharacterLimit != nil {
		s.PostExcerptCharacterLimit = *f.PostExcerptCharacterLimit
	}
	if f.WhitelistedPostHTMLTags != nil {
		s.WhitelistedPostHTMLTags = *f.WhitelistedPostHTMLTags
	}
	if f.PostTypes != nil {
		s.PostTypes = *f.PostTypes
	}
	if f.EmailRegexp != nil {
		// ParseSettingsFileで検証済み
		s.EmailRegexp = regexp.MustCompile(*f.EmailRegexp)
	}
	if f.SearchAdapter != nil {
		name, _ := ParseSearchAdapterName(*f.SearchAdapter)
		s.SearchAdapter = name
	}
	if f.MediaStorage != nil {
		s.MediaStorage = MediaStorage(*f.MediaStorage)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
