package usecase

import "fmt"

// Stage はアップロード1件に対するパイプラインの状態を表します。
type Stage string

const (
	StageReceived     Stage = "received"
	StageSaved        Stage = "saved"
	StageValidated    Stage = "validated"
	StagePreprocessed Stage = "preprocessed"
	StageClassified   Stage = "classified"
	StagePersisted    Stage = "persisted"
	StageRedirected   Stage = "redirected"
	StageFailed       Stage = "error"
)

// StageError はパイプラインが error 状態へ遷移したことを表します。
// Stage は到達できなかった状態、Kind はユーザー向けに分類されたセンチネルエラー、
// Err は内部の原因（ログ専用）です。
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap は errors.Is でセンチネルと内部原因の両方を辿れるようにします。
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
