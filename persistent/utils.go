package persistent

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"strings"

	"github.com/zkfleet/zkfleet/common"
)

// recordDelimiter terminates every record in a log catalog. It cannot
// occur in a host, user or secret typed on a command line.
const recordDelimiter = "\n"

// fieldSeparator joins host, user and secret within one record.
const fieldSeparator = ":"

func validateRecord(record common.ServerRecord) error {
	switch {
	case record.Host == "" || record.User == "":
		return fmt.Errorf("%w: host and user must be set", common.ErrConfiguration)
	case strings.Contains(record.Host, fieldSeparator), strings.Contains(record.User, fieldSeparator):
		return fmt.Errorf("%w: host and user may not contain %q", common.ErrConfiguration, fieldSeparator)
	case strings.Contains(record.Host+record.User+record.Secret, recordDelimiter):
		return fmt.Errorf("%w: record for %q contains a line break", common.ErrConfiguration, record.Host)
	}
	return nil
}

func formatRecord(record common.ServerRecord) string {
	return record.Host + fieldSeparator + record.User + fieldSeparator + record.Secret + recordDelimiter
}

// parseRecords splits a whole log on the delimiter, discarding the empty
// element that follows the final delimiter.
func parseRecords(data string) ([]common.ServerRecord, error) {
	parts := strings.Split(data, recordDelimiter)
	parts = parts[:len(parts)-1]
	records := make([]common.ServerRecord, 0, len(parts))
	for i, part := range parts {
		fields := strings.SplitN(part, fieldSeparator, 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed catalog record %d: %q", i+1, part)
		}
		records = append(records, common.ServerRecord{
			Host:   fields[0],
			User:   fields[1],
			Secret: fields[2],
		})
	}
	return records, nil
}

func encodeRecord(record common.ServerRecord) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := gob.NewEncoder(&buf).Encode(record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(s []byte) (common.ServerRecord, error) {
	record := common.ServerRecord{}
	err := gob.NewDecoder(bytes.NewReader(s)).Decode(&record)
	return record, err
}

func uint64ToBytes(u uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}
