package wsframe

func decodeHixie(buf []byte, state ParseState) ([][]byte, int, ParseState, error) {
	var messages [][]byte
	i, n := 0, len(buf)

	for i < n {
		b := buf[i]
		switch state.hixiePhase {
		case phaseHixieReadBegin:
			if b != 0xff {
				return messages, i, ParseState{dialect: DialectHixie76}, ErrProtocol
			}
			state.hixiePhase = phaseHixieReadBody
			state.hixieBuf = state.hixieBuf[:0]
			i++

		case phaseHixieReadBody:
			i++
			if b == 0x00 {
				if len(state.hixieBuf) == 0 {
					return messages, i, ParseState{dialect: DialectHixie76}, ErrConnectionClosed
				}
				msg := make([]byte, len(state.hixieBuf))
				copy(msg, state.hixieBuf)
				messages = append(messages, msg)
				state.hixieBuf = state.hixieBuf[:0]
				state.hixiePhase = phaseHixieReadBegin
				continue
			}
			state.hixieBuf = append(state.hixieBuf, b)
		}
	}
	return messages, i, state, nil
}
