// Package ranker implements the three ranking models of the engine: Okapi
// BM25, log-tf × idf vector-space scoring and query likelihood with
// Dirichlet smoothing. Every function here is pure; the model and its
// parameters are passed explicitly on each call.
package ranker

import (
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Harness/pkg/errors"
)

type Model string

const (
	BM25        Model = "BM25"
	TFIDF       Model = "TFIDF"
	LMDirichlet Model = "LMDirichlet"
)

// AllModels lists the models in their canonical output order.
var AllModels = []Model{BM25, TFIDF, LMDirichlet}

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
	DefaultMu = 2000.0

	// FloorProbability stands in for p(t|C) when a term never occurs in the
	// collection.
	FloorProbability = 1e-10
)

type Params struct {
	K1              float64 `json:"k1"`
	B               float64 `json:"b"`
	Mu              float64 `json:"mu"`
	CosineNormalize bool    `json:"cosine_normalize"`
	RawIDF          bool    `json:"raw_idf"`
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB, Mu: DefaultMu}
}

// ParseModel accepts the canonical model names case-insensitively, plus
// "VectorSpaceTFIDF" as an alias for TFIDF.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bm25":
		return BM25, nil
	case "tfidf", "vectorspacetfidf", "vsm", "classic":
		return TFIDF, nil
	case "lmdirichlet", "dirichlet", "lm-dirichlet":
		return LMDirichlet, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "unknown ranking model %q", s)
	}
}

// Score returns the relevance of docID to queryTerms under model.
func Score(model Model, params Params, queryTerms []string, docID uint32, idx *index.Index) float64 {
	switch model {
	case BM25:
		return scoreBM25(params, queryTerms, docID, idx)
	case TFIDF:
		return scoreTFIDF(params, queryTerms, docID, idx)
	case LMDirichlet:
		return scoreDirichlet(params, queryTerms, docID, idx)
	default:
		return 0
	}
}

func scoreBM25(params Params, queryTerms []string, docID uint32, idx *index.Index) float64 {
	n := float64(idx.DocCount())
	docLen := float64(idx.DocLength(docID))
	avgdl := idx.AvgDocLength()
	score := 0.0
	for _, term := range queryTerms {
		pl := idx.Postings(term)
		if pl == nil {
			continue
		}
		tf := float64(pl.Frequency(docID))
		if tf == 0 {
			continue
		}
		idf := BM25IDF(n, float64(pl.DocFreq))
		score += idf * BM25TermWeight(tf, docLen, avgdl, params.K1, params.B)
	}
	return score
}

// BM25IDF is ln(1 + (N - df + 0.5) / (df + 0.5)).
func BM25IDF(totalDocs, docFreq float64) float64 {
	if docFreq == 0 {
		return 0
	}
	return math.Log(1 + (totalDocs-docFreq+0.5)/(docFreq+0.5))
}

// BM25TermWeight is the saturated, length-normalised term frequency
// tf*(k1+1) / (tf + k1*(1 - b + b*len/avgdl)).
func BM25TermWeight(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if termFreq == 0 {
		return 0
	}
	lengthRatio := 0.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

func scoreTFIDF(params Params, queryTerms []string, docID uint32, idx *index.Index) float64 {
	if params.CosineNormalize {
		return cosineTFIDF(params, queryTerms, docID, idx)
	}
	n := float64(idx.DocCount())
	score := 0.0
	for _, term := range queryTerms {
		pl := idx.Postings(term)
		if pl == nil {
			continue
		}
		idf := VectorIDF(n, float64(pl.DocFreq), params.RawIDF)
		score += TFIDFWeight(float64(pl.Frequency(docID)), idf)
	}
	return score
}

// VectorIDF is 1 + ln((N+1)/(df+1)), or ln(N/df) when raw is set. The raw
// form is zero for a term present in every document.
func VectorIDF(totalDocs, docFreq float64, raw bool) float64 {
	if docFreq <= 0 {
		return 0
	}
	if raw {
		return math.Log(totalDocs / docFreq)
	}
	return 1 + math.Log((totalDocs+1)/(docFreq+1))
}

// TFIDFWeight is (1 + ln tf) * idf for tf > 0 and 0 otherwise.
func TFIDFWeight(termFreq, idf float64) float64 {
	if termFreq <= 0 {
		return 0
	}
	return (1 + math.Log(termFreq)) * idf
}

// DocumentNorm is the Euclidean length of docID's log-tf × idf vector.
func DocumentNorm(params Params, docID uint32, idx *index.Index) float64 {
	n := float64(idx.DocCount())
	sum := 0.0
	for _, tc := range idx.DocTerms(docID) {
		w := TFIDFWeight(float64(tc.Frequency), VectorIDF(n, float64(idx.DocFreq(tc.Term)), params.RawIDF))
		sum += w * w
	}
	return math.Sqrt(sum)
}

// cosineTFIDF weights query and document alike and returns the cosine of the
// angle between the two vectors.
func cosineTFIDF(params Params, queryTerms []string, docID uint32, idx *index.Index) float64 {
	n := float64(idx.DocCount())
	queryFreqs := make(map[string]float64, len(queryTerms))
	for _, term := range queryTerms {
		queryFreqs[term]++
	}
	dot, queryNorm := 0.0, 0.0
	for term, qtf := range queryFreqs {
		pl := idx.Postings(term)
		if pl == nil {
			continue
		}
		idf := VectorIDF(n, float64(pl.DocFreq), params.RawIDF)
		qw := TFIDFWeight(qtf, idf)
		queryNorm += qw * qw
		dot += qw * TFIDFWeight(float64(pl.Frequency(docID)), idf)
	}
	if dot == 0 {
		return 0
	}
	denominator := math.Sqrt(queryNorm) * DocumentNorm(params, docID, idx)
	if denominator == 0 {
		return 0
	}
	return dot / denominator
}

func scoreDirichlet(params Params, queryTerms []string, docID uint32, idx *index.Index) float64 {
	docLen := float64(idx.DocLength(docID))
	collectionLen := float64(idx.CollectionLength())
	score := 0.0
	for _, term := range queryTerms {
		pl := idx.Postings(term)
		if pl == nil || collectionLen == 0 {
			// Unseen terms contribute nothing, as in the other models.
			continue
		}
		p := float64(pl.CollectionFreq) / collectionLen
		score += DirichletTerm(float64(pl.Frequency(docID)), docLen, p, params.Mu)
	}
	return score
}

// DirichletTerm is ln((tf + mu*p) / (len + mu)), with p floored at
// FloorProbability so an unseen term never yields ln(0).
func DirichletTerm(termFreq, docLength, collectionProb, mu float64) float64 {
	if collectionProb <= 0 {
		collectionProb = FloorProbability
	}
	return math.Log((termFreq + mu*collectionProb) / (docLength + mu))
}

// ScoredDoc is a document together with its score under one model.
type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Less orders by descending score, then ascending document ID.
func (d ScoredDoc) Less(other ScoredDoc) bool {
	if d.Score != other.Score {
		return d.Score > other.Score
	}
	return d.DocID < other.DocID
}
