// Package frame splits a streamed HTTP response body into protocol frames.
//
// A frame is the text preceding a frame delimiter. Two delimiters are valid
// on the wire: CRLF-CRLF and LF-LF. When the buffered text contains both,
// the one at the smaller offset terminates the frame, regardless of which
// form the producer otherwise uses:
//
//	r := frame.NewReader(resp.Body)
//	for f, err := range r.Frames() {
//	    if err != nil {
//	        return err
//	    }
//	    handle(f)
//	}
//
// Bytes are decoded as UTF-8 incrementally, so a multi-byte character split
// across two reads is held back until it is complete.
//
// Text left in the buffer when the source ends without a trailing delimiter
// is not a frame and is dropped. [Reader.Discarded] reports its size so that
// callers can log producers that omit the final delimiter.
package frame
