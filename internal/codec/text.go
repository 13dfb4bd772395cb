package codec

import (
	"github.com/witnz/rowdiff/internal/logitem"
	"github.com/witnz/rowdiff/internal/results"
	"github.com/witnz/rowdiff/internal/tree"
)

func EncodeRow(row results.Row) ([]byte, error) {
	return tree.Marshal(RowToTree(row))
}

func DecodeRow(data []byte) (results.Row, error) {
	n, err := tree.Unmarshal(data)
	if err != nil {
		return results.Row{}, err
	}
	return RowFromTree(n)
}

func EncodeTable(t results.Table) ([]byte, error) {
	return tree.Marshal(TableToTree(t))
}

func DecodeTable(data []byte) (results.Table, error) {
	n, err := tree.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return TableFromTree(n)
}

func EncodeDiff(d results.Diff) ([]byte, error) {
	return tree.Marshal(DiffToTree(d))
}

func DecodeDiff(data []byte) (results.Diff, error) {
	n, err := tree.Unmarshal(data)
	if err != nil {
		return results.Diff{}, err
	}
	return DiffFromTree(n)
}

func EncodeSnapshot(s results.Snapshot) ([]byte, error) {
	return tree.Marshal(SnapshotToTree(s))
}

func DecodeSnapshot(data []byte) (results.Snapshot, error) {
	n, err := tree.Unmarshal(data)
	if err != nil {
		return results.Snapshot{}, err
	}
	return SnapshotFromTree(n)
}

func EncodeLogItem(item *logitem.LogItem) ([]byte, error) {
	return tree.Marshal(LogItemToTree(item))
}

func DecodeLogItem(data []byte) (*logitem.LogItem, error) {
	n, err := tree.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return LogItemFromTree(n)
}
