// Package textutil provides the text normalization shared by search and
// embedding: Unicode-aware tokenization, term-frequency fingerprints with
// cosine similarity, and filename sanitization.
//
// Tokenize applies NFKC normalization and Unicode case folding, splits on
// anything that is not a letter or digit, drops a small set of English stop
// words, and turns runs of Han, Kana, or Hangul characters into overlapping
// bigrams so unsegmented languages still produce useful terms.
package textutil
