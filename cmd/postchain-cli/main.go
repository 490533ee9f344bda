// Command postchain-cli is an operator utility for genesis construction and
// header/block inspection: it reads one JSON request object from stdin,
// dispatches on its "op" field, and writes one JSON response object to
// stdout. It does not run a node; cmd/postchain-node does that.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"postchain.dev/node/consensus"
	"postchain.dev/node/cryptosuite"
)

// Request is the single JSON object read from stdin. Fields not relevant to
// req.Op are left at their zero value.
type Request struct {
	Op string `json:"op"`

	NetworkID string `json:"network_id,omitempty"`

	ParentHashHex string `json:"parent_hash,omitempty"`
	Epoch         int64  `json:"epoch,omitempty"`

	ChallengeHex  string `json:"challenge,omitempty"`
	LeafValueHex  string `json:"leaf_value,omitempty"`

	DifficultyHex string `json:"difficulty_hex,omitempty"`
	Difficulty    int64  `json:"difficulty,omitempty"`
	TargetHex     string `json:"target,omitempty"`

	HeaderHex string `json:"header_hex,omitempty"`
	BlockHex  string `json:"block_hex,omitempty"`

	// build_genesis_block fields.
	Timestamp     int64  `json:"timestamp,omitempty"`
	PlotIDHex     string `json:"plot_id,omitempty"`
	PrivateKeyHex string `json:"private_key,omitempty"`
}

// Response is the single JSON object written to stdout for every op.
type Response struct {
	Ok  bool   `json:"ok"`
	Err string `json:"err,omitempty"`

	ChallengeHex string `json:"challenge,omitempty"`
	TargetHex    string `json:"target,omitempty"`
	Difficulty   int64  `json:"difficulty,omitempty"`
	ScoreHex     string `json:"score,omitempty"`
	HashHex      string `json:"hash,omitempty"`
	HeaderHex    string `json:"header_hex,omitempty"`
	BlockHex     string `json:"block_hex,omitempty"`

	Header *HeaderView `json:"header,omitempty"`
	TxCount int        `json:"tx_count,omitempty"`
}

// HeaderView is the JSON-friendly projection of a consensus.BlockHeader used
// by inspect_header / inspect_block.
type HeaderView struct {
	Version    uint8  `json:"version"`
	ParentHash string `json:"parent_hash"`
	Height     int64  `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	Difficulty int64  `json:"difficulty"`
	Epoch      int64  `json:"epoch"`
	Challenge  string `json:"challenge"`
	PlotRoot   string `json:"plot_root"`
	ProofScore string `json:"proof_score"`
	TxRoot     string `json:"tx_root"`
	MinerID    string `json:"miner_id"`
	Signed     bool   `json:"signed"`
}

func headerView(h consensus.BlockHeader) *HeaderView {
	return &HeaderView{
		Version:    h.Version,
		ParentHash: h.ParentHash.String(),
		Height:     h.Height,
		Timestamp:  h.Timestamp,
		Difficulty: h.Difficulty,
		Epoch:      h.Epoch,
		Challenge:  h.Challenge.String(),
		PlotRoot:   h.PlotRoot.String(),
		ProofScore: h.ProofScore.String(),
		TxRoot:     h.TxRoot.String(),
		MinerID:    h.MinerID.String(),
		Signed:     h.HasSignature(),
	}
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}

func errResp(err error) Response {
	if ce, ok := err.(*consensus.Error); ok {
		return Response{Ok: false, Err: string(ce.Code)}
	}
	return Response{Ok: false, Err: err.Error()}
}

func decodeHash32(hexStr, field string) (consensus.Hash32, error) {
	var out consensus.Hash32
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("bad %s", field)
	}
	copy(out[:], b)
	return out, nil
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResp(os.Stdout, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}

	switch req.Op {
	case "derive_genesis_challenge":
		challenge, err := consensus.DeriveGenesisChallenge(req.NetworkID)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		writeResp(os.Stdout, Response{Ok: true, ChallengeHex: challenge.String()})

	case "derive_challenge":
		parentHash, err := decodeHash32(req.ParentHashHex, "parent_hash")
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: err.Error()})
			return
		}
		challenge, err := consensus.DeriveChallenge(parentHash, req.Epoch)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		writeResp(os.Stdout, Response{Ok: true, ChallengeHex: challenge.String()})

	case "compute_proof_score":
		challenge, err := decodeHash32(req.ChallengeHex, "challenge")
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: err.Error()})
			return
		}
		leaf, err := decodeHash32(req.LeafValueHex, "leaf_value")
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: err.Error()})
			return
		}
		score := consensus.ComputeProofScore(challenge, leaf)
		writeResp(os.Stdout, Response{Ok: true, ScoreHex: score.String()})

	case "difficulty_to_target":
		target, err := consensus.DifficultyToTarget(req.Difficulty)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		writeResp(os.Stdout, Response{Ok: true, TargetHex: target.String()})

	case "target_to_difficulty":
		target, err := decodeHash32(req.TargetHex, "target")
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: err.Error()})
			return
		}
		difficulty, err := consensus.TargetToDifficulty(target)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		writeResp(os.Stdout, Response{Ok: true, Difficulty: difficulty})

	case "block_hash":
		headerBytes, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: "bad header_hex"})
			return
		}
		header, err := consensus.DecodeHeader(headerBytes)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		hash := consensus.HashHeader(header)
		writeResp(os.Stdout, Response{Ok: true, HashHex: hash.String()})

	case "inspect_header":
		headerBytes, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: "bad header_hex"})
			return
		}
		header, err := consensus.DecodeHeader(headerBytes)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		writeResp(os.Stdout, Response{Ok: true, Header: headerView(header), HashHex: consensus.HashHeader(header).String()})

	case "inspect_block":
		blockBytes, err := hex.DecodeString(req.BlockHex)
		if err != nil {
			writeResp(os.Stdout, Response{Ok: false, Err: "bad block_hex"})
			return
		}
		block, err := consensus.DecodeBlock(blockBytes)
		if err != nil {
			writeResp(os.Stdout, errResp(err))
			return
		}
		writeResp(os.Stdout, Response{
			Ok:      true,
			Header:  headerView(block.Header),
			HashHex: consensus.HashHeader(block.Header).String(),
			TxCount: len(block.Body.Transactions),
		})

	case "build_genesis_block":
		resp := buildGenesisBlock(req)
		writeResp(os.Stdout, resp)

	default:
		writeResp(os.Stdout, Response{Ok: false, Err: "unknown op"})
	}
}

// buildGenesisBlock assembles and signs height-0 header with an empty
// transaction list and a trivial single-leaf proof (plot_root == leaf_value,
// an empty Merkle path folds to the leaf itself) and returns it encoded. It
// does not run the result through BlockValidator. Plot
// construction itself is out of scope; this produces the minimal proof shape
// a freshly-bootstrapped single-leaf plot would present.
func buildGenesisBlock(req Request) Response {
	challenge, err := consensus.DeriveGenesisChallenge(req.NetworkID)
	if err != nil {
		return errResp(err)
	}
	leaf, err := decodeHash32(req.LeafValueHex, "leaf_value")
	if err != nil {
		return Response{Ok: false, Err: err.Error()}
	}
	plotID, err := decodeHash32(req.PlotIDHex, "plot_id")
	if err != nil {
		return Response{Ok: false, Err: err.Error()}
	}
	keyBytes, err := hex.DecodeString(req.PrivateKeyHex)
	if err != nil {
		return Response{Ok: false, Err: "bad private_key"}
	}
	key, err := cryptosuite.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return Response{Ok: false, Err: err.Error()}
	}

	header := consensus.BlockHeader{
		Version:    1,
		ParentHash: consensus.Hash32{},
		Height:     0,
		Timestamp:  req.Timestamp,
		Difficulty: req.Difficulty,
		Epoch:      0,
		Challenge:  challenge,
		PlotRoot:   leaf,
		ProofScore: consensus.ComputeProofScore(challenge, leaf),
		TxRoot:     consensus.BuildMerkleRoot(nil),
		MinerID:    key.PublicKey(),
	}
	hash := consensus.HashHeader(header)
	sig, err := key.Sign(hash)
	if err != nil {
		return Response{Ok: false, Err: err.Error()}
	}
	header = header.WithSignature(sig)

	block := consensus.Block{
		Header: header,
		Body: consensus.BlockBody{
			Proof: consensus.BlockProof{
				LeafValue:    leaf,
				PlotMetadata: consensus.BlockPlotMetadata{LeafCount: 1, PlotID: plotID},
			},
		},
	}
	encoded, err := consensus.EncodeBlock(block)
	if err != nil {
		return errResp(err)
	}
	return Response{Ok: true, BlockHex: hex.EncodeToString(encoded), HashHex: hash.String(), HeaderHex: hex.EncodeToString(consensus.EncodeHeader(header))}
}
