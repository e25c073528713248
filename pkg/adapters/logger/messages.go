package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Playing %s":                                      "%s を再生中",
		"Finished at %v of %v":                            "%v / %v で再生を終了しました",
		"Play time limit of %v reached":                   "再生時間の上限 %v に達しました",
		"Interrupted, shutting down...":                   "中断されました。シャットダウン中...",
		"Source needs transcoding, reading it completely": "トランスコードが必要なため、ソース全体を読み込みます",
		"Summary saved to %s":                             "サマリーを %s に保存しました",
		"Opened %s (%d bytes)":                            "%s を開きました (%d バイト)",
		"Opened s3://%s/%s (%d bytes)":                    "s3://%s/%s を開きました (%d バイト)",
		"Command %s":                                      "コマンド %s",
		"Command %s ignored: %v":                          "コマンド %s は無視されました: %v",

		// Player
		"Loaded %s source: %d tracks, duration %v (%s)": "%s ソースを読み込みました: %d トラック, 長さ %v (%s)",
		"Opened %s source: %d tracks, duration %v":      "%s ソースを開きました: %d トラック, 長さ %v",
		"State %s -> %s":                                "状態 %s -> %s",
		"Duration %v -> %v (estimated=%v)":              "長さ %v -> %v (推定=%v)",
		"End of media at %v":                            "%v でメディアの終端に達しました",
		"End of media at %v, looping":                   "%v でメディアの終端に達しました。先頭に戻ります",
		"Disposed":                                      "破棄しました",

		// Seek
		"Executing seek to %v":         "%v へシーク中",
		"Seek to %v reached %v":        "%v へのシークは %v に到達しました",
		"Seek to %v failed: %v":        "%v へのシークに失敗しました: %v",
		"Seek failed, restored %s: %v": "シークに失敗したため %s に戻しました: %v",

		// Demux
		"Omitting track %d: %v":        "トラック %d を除外します: %v",
		"Omitting incomplete track %d": "不完全なトラック %d を除外します",

		// Decode
		"Configured %s":                                      "%s を設定しました",
		"Opening %s with decoder %s":                         "%s をデコーダー %s で開いています",
		"Found ffmpeg at %s with %d decoders":                "ffmpeg を %s で検出しました (%d デコーダー)",
		"Unsupported codecs %v, falling back to transcoding": "未対応のコーデック %v のためトランスコードに切り替えます",
		"Transcoding source (%d bytes)":                      "ソースをトランスコード中 (%d バイト)",
		"Transcoding %d bytes with ffmpeg":                   "ffmpeg で %d バイトをトランスコード中",
		"Transcoded to %d bytes":                             "%d バイトにトランスコードしました",
		"Transcode complete (%d bytes)":                      "トランスコードが完了しました (%d バイト)",

		// Audio and video output
		"Audio output: %v":                                  "音声出力: %v",
		"Audio output: %d Hz, %d channels":                  "音声出力: %d Hz, %d チャンネル",
		"Audio schedule reset after %d buffers":             "%d バッファ後に音声スケジュールをリセットしました",
		"Audio device closed after %d buffers":              "%d バッファ後に音声デバイスを閉じました",
		"Renderer %s (vsync=%v)":                            "レンダラー %s (vsync=%v)",
		"Hardware renderer unavailable, using software: %v": "ハードウェアレンダラーが使えないためソフトウェアを使用します: %v",

		// Warnings
		"Dropping sample: %v":                            "サンプルを破棄します: %v",
		"Drain of track %d failed: %v":                   "トラック %d の残り出力の取り出しに失敗しました: %v",
		"Decoder backend %s failed for %s: %v":           "デコーダーバックエンド %s は %s で失敗しました: %v",
		"ffmpeg finished with %d samples without output": "ffmpeg が %d サンプルを出力せずに終了しました",
		"Failed to write summary: %v":                    "サマリーの書き込みに失敗しました: %v",
		"Dispose failed: %v":                             "破棄に失敗しました: %v",
		"Closing decoder: %v":                            "デコーダーを閉じています: %v",

		// Errors
		"Failed to load %s: %v": "%s の読み込みに失敗しました: %v",
		"Playback failed: %v":   "再生に失敗しました: %v",
	})
}
