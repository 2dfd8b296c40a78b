// Package code реализует последовательность коротких кодов.
//
// Каждое неотрицательное число n однозначно отображается в код над алфавитом
// 0-9A-Za-z (base62). Коды упорядочены сначала по длине, затем
// лексикографически, и этот порядок совпадает с порядком чисел.
package code

import (
	"errors"
	"fmt"
	"math"
)

// Alphabet задаёт символы кода в порядке возрастания их веса.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = uint64(len(Alphabet))

// ErrInvalidCode возвращается для кода, который не принадлежит последовательности
// либо не может быть выдан пользователю.
var ErrInvalidCode = errors.New("invalid code")

var index [256]int8

func init() {
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		index[Alphabet[i]] = int8(i)
	}
}

// Encode возвращает код для позиции n.
func Encode(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}

	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Decode возвращает позицию кода в последовательности.
// Пустой код, чужие символы, ведущий ноль и переполнение дают ErrInvalidCode.
func Decode(code string) (uint64, error) {
	if code == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	if len(code) > 1 && code[0] == Alphabet[0] {
		return 0, fmt.Errorf("%w: %q has a leading zero", ErrInvalidCode, code)
	}

	var n uint64
	for i := 0; i < len(code); i++ {
		d := index[code[i]]
		if d < 0 {
			return 0, fmt.Errorf("%w: %q contains %q", ErrInvalidCode, code, code[i])
		}
		if n > (math.MaxUint64-uint64(d))/base {
			return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidCode, code)
		}
		n = n*base + uint64(d)
	}
	return n, nil
}

// Next возвращает код, следующий за code.
func Next(code string) (string, error) {
	n, err := Decode(code)
	if err != nil {
		return "", err
	}
	if n == math.MaxUint64 {
		return "", fmt.Errorf("%w: %q is the last code", ErrInvalidCode, code)
	}
	return Encode(n + 1), nil
}

// Compare сравнивает два корректных кода в порядке последовательности:
// -1 если a < b, 0 если равны, +1 если a > b.
func Compare(a, b string) int {
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
