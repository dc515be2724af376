package credentials

import (
	"errors"
	"fmt"
)

// Source はユーザー名からパスワードを引く読み取り専用の資格情報源です。
type Source interface {
	Lookup(username string) (password string, found bool, err error)
}

// Outcome はログイン判定の結果です。
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeAccepted
	OutcomeUnavailable
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeFault:
		return "fault"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Validator はユーザー名とパスワードの組を検証します。
type Validator struct {
	src Source
}

// NewValidator は Validator を作成します。
func NewValidator(src Source) *Validator {
	return &Validator{src: src}
}

// Validate は username と password を照合します。
//
// 未登録ユーザーとパスワード不一致はどちらも OutcomeRejected になり、区別しません。
// 比較は単純な等価比較です。
func (v *Validator) Validate(username, password string) (Outcome, error) {
	stored, found, err := v.src.Lookup(username)
	switch {
	case errors.Is(err, ErrUnavailable):
		return OutcomeUnavailable, err
	case err != nil:
		return OutcomeFault, fmt.Errorf("credential lookup failed: %w", err)
	case !found || stored != password:
		return OutcomeRejected, nil
	}
	return OutcomeAccepted, nil
}

// Exists はユーザー名が登録されているかを返します。パスワードは確認しません。
func (v *Validator) Exists(username string) (bool, error) {
	_, found, err := v.src.Lookup(username)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return false, err
		}
		return false, fmt.Errorf("credential lookup failed: %w", err)
	}
	return found, nil
}

// Validate は src に対して username と password が一致するかを返します。
// ストアが利用できない場合は false ではなく ErrUnavailable を返します。
func Validate(src Source, username, password string) (bool, error) {
	outcome, err := NewValidator(src).Validate(username, password)
	if err != nil {
		return false, err
	}
	return outcome == OutcomeAccepted, nil
}
