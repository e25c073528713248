// Package main provides localization for the playcore CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Logging":       "ログ",
		"Output":        "出力先",
		"Playback":      "再生",
		"Pipeline":      "パイプライン",
		"Decoder":       "デコーダー",

		// Root command
		"Play audio and video files through the playcore pipeline":                                                                         "playcoreパイプラインで音声と動画を再生",
		"playcore demuxes MP4 and WebM sources, decodes them with ffmpeg and presents them to a window, snapshot files or nowhere at all.": "playcoreはMP4とWebMのソースを分離し、ffmpegでデコードして、ウィンドウ、スナップショット画像、または出力なしで再生します。",

		// Global flags
		"YAML configuration file":                                    "YAML設定ファイル",
		"Files with PLAYCORE_* variables, missing files are ignored": "PLAYCORE_* 変数を含むファイル（存在しないファイルは無視）",
		"Log level (debug, info, warn, error)":                       "ログレベル（debug, info, warn, error）",
		"Log format (console, text, json)":                           "ログ形式（console, text, json）",
		"Suppress all log output":                                    "すべてのログ出力を抑制",

		// Play command
		"Play a media file":                                     "メディアファイルを再生",
		"Presentation sink (null, snapshot, window)":            "表示先（null, snapshot, window）",
		"Directory for snapshot images":                         "スナップショット画像の保存先ディレクトリ",
		"Save every Nth presented picture":                      "N枚ごとに表示した画像を保存",
		"Write a Markdown summary to this path":                 "Markdown形式のサマリーをこのパスに書き込む",
		"Restart from the beginning at the end of media":        "終端に達したら先頭から再生",
		"Initial volume (0.0-1.0)":                              "初期音量（0.0-1.0）",
		"Start muted":                                           "ミュートで開始",
		"Stop after this much wall time (0 plays to the end)":   "この実時間が経過したら停止（0で最後まで再生）",
		"Read the whole source before playing":                  "再生前にソース全体を読み込む",
		"Frame rate of the render loop":                         "描画ループのフレームレート",
		"Prefer hardware decoders":                              "ハードウェアデコーダーを優先",
		"Disable the transcode fallback for unsupported codecs": "未対応コーデックのトランスコードを無効化",
		"Path to the ffmpeg executable":                         "ffmpeg実行ファイルのパス",

		// Probe command
		"Show container and track information": "コンテナとトラックの情報を表示",
		"Format: %s":                           "形式: %s",
		"Duration: %s":                         "長さ: %s",
		"%s (estimated)":                       "%s（推定）",

		// Errors
		"Error: %v":                              "エラー: %v",
		"exactly one media location is required": "メディアの場所を1つだけ指定してください",
	})
}
