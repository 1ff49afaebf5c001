// Package tokens counts prompt tokens locally, before a prompt is sent.
// Backends report authoritative usage afterwards; these counts fill in when
// they do not.
package tokens

import (
	"math"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens with a BPE encoding. The zero value uses cl100k.
type Estimator struct {
	Encoding tokenizer.Encoding
}

// GPT is the cl100k encoding used by OpenAI-compatible backends.
var GPT = Estimator{Encoding: tokenizer.Cl100kBase}

// Claude has no public encoder; cl100k is the closest available.
var Claude = Estimator{Encoding: tokenizer.Cl100kBase}

var codecs sync.Map // tokenizer.Encoding -> tokenizer.Codec

func codecFor(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	if c, ok := codecs.Load(enc); ok {
		return c.(tokenizer.Codec), nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	actual, _ := codecs.LoadOrStore(enc, c)
	return actual.(tokenizer.Codec), nil
}

// Count returns the token count of text. Text the encoding cannot handle
// falls back to a character-ratio approximation.
func (e Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	enc := e.Encoding
	if enc == "" {
		enc = tokenizer.Cl100kBase
	}
	codec, err := codecFor(enc)
	if err != nil {
		return approximate(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return approximate(text)
	}
	return len(ids)
}

// approximate charges one token per four ASCII characters and one per other
// rune, floored at the word count.
func approximate(text string) int {
	var ascii, other, words int
	inWord := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			words++
		}
	}

	n := int(math.Ceil(float64(ascii)/4)) + other
	if n < words {
		n = words
	}
	return n
}
