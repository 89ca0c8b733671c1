// Package textutil provides the text normalization shared by annotation
// merging, catalog indexing, and matching, plus filename sanitizing for upload
// object paths.
//
// FoldKey is the merge key for labels and web entities. PhraseKey and Tokens
// additionally break on punctuation and drive phrase matching of catalog names
// against detected text.
package textutil
